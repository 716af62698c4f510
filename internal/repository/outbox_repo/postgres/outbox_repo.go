package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/outbox_repo"
)

const outboxColumns = `id, aggregate_id, topic, key, payload, status, created_at, sent_at`

type OutboxRepository struct {
	querier domain.Querier
	now     func() time.Time
}

func NewOutboxRepository(querier domain.Querier) *OutboxRepository {
	return &OutboxRepository{querier: querier, now: time.Now}
}

// CreateMessage stores msg as part of the caller's unit of work, next to the
// ledger change it announces.
func (r *OutboxRepository) CreateMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	status := msg.Status
	if status == "" {
		status = domain.OutboxStatusPending
	}
	_, err := r.querier.ExecContext(ctx,
		`INSERT INTO outbox_messages (`+outboxColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		msg.ID, msg.AggregateID, msg.Topic, msg.Key, msg.Payload, status, msg.CreatedAt, nullTime(msg.SentAt),
	)
	if err != nil {
		return fmt.Errorf("failed to stage outbox message for %s: %w", msg.AggregateID, err)
	}
	return nil
}

// GetPendingMessages claims up to limit pending messages in insertion order. The rows
// stay locked until the surrounding transaction ends and concurrent relays skip
// them.
func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := r.querier.QueryContext(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_messages
		WHERE status = $1
		ORDER BY seq
		LIMIT $2
		FOR UPDATE SKIP LOCKED`,
		domain.OutboxStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending outbox messages: %w", err)
	}
	defer rows.Close()

	var claimed []domain.OutboxMessage
	for rows.Next() {
		var (
			msg    domain.OutboxMessage
			sentAt sql.NullTime
		)
		if err := rows.Scan(&msg.ID, &msg.AggregateID, &msg.Topic, &msg.Key, &msg.Payload, &msg.Status, &msg.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if sentAt.Valid {
			t := sentAt.Time
			msg.SentAt = &t
		}
		claimed = append(claimed, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return claimed, nil
}

// UpdateMessageStatus moves a message to status. sent_at is stamped only for SENT.
func (r *OutboxRepository) UpdateMessageStatus(ctx context.Context, id string, status domain.OutboxMessageStatus) error {
	var sentAt *time.Time
	if status == domain.OutboxStatusSent {
		now := r.now().UTC()
		sentAt = &now
	}
	res, err := r.querier.ExecContext(ctx,
		`UPDATE outbox_messages SET status = $1, sent_at = $2 WHERE id = $3`,
		status, nullTime(sentAt), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message %s as %s: %w", id, status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read rows affected for outbox message %s: %w", id, err)
	} else if n == 0 {
		return fmt.Errorf("outbox message %s does not exist", id)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

var _ outbox_repo.OutboxRepository = (*OutboxRepository)(nil)
