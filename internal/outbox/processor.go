package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain/event"
	kafka_infra "github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/kafka"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

// Processor relays pending outbox messages to Kafka.
type Processor struct {
	txManager    repository.TxManager
	publisher    kafka_infra.Publisher
	pollInterval time.Duration
	pollTimeout  time.Duration
	batchSize    int
	logger       *zap.Logger
}

func NewProcessor(
	txManager repository.TxManager,
	publisher kafka_infra.Publisher,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{
		txManager:    txManager,
		publisher:    publisher,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopping.")
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil {
				p.logger.Error("Outbox poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce publishes one batch of pending messages and returns how many were
// marked as sent. Messages that fail to publish stay pending for the next poll.
func (p *Processor) ProcessOnce(ctx context.Context) (int, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	sent := 0
	err := p.txManager.WithinTx(pollCtx, func(ctx context.Context, repos repository.Repositories) error {
		messages, err := repos.Outbox().GetPendingMessages(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			p.logger.Debug("No pending outbox messages found.")
			return nil
		}
		p.logger.Info("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if err := p.publisher.Publish(ctx, msg); err != nil {
				p.logger.Error("Failed to publish outbox message",
					zap.String("message_id", msg.ID),
					zap.String("topic", msg.Topic),
					zap.Error(err))
				continue
			}
			if err := repos.Outbox().UpdateMessageStatus(ctx, msg.ID, domain.OutboxStatusSent); err != nil {
				return fmt.Errorf("failed to mark outbox message %s as sent: %w", msg.ID, err)
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if sent > 0 {
		p.logger.Info("Outbox messages published", zap.Int("sent", sent))
	}
	return sent, nil
}

// NewTransactionCommittedMessage builds the outbox message announcing rec.
func NewTransactionCommittedMessage(topic string, rec *domain.TransactionRecord) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event.TransactionCommittedEvent{
		TransactionID:           rec.ID,
		Type:                    string(rec.Type),
		SourceAccountID:         rec.SourceAccountID,
		DestinationAccountID:    rec.DestinationAccountID,
		Amount:                  rec.Amount,
		SourceBalanceAfter:      rec.SourceBalanceAfter,
		DestinationBalanceAfter: rec.DestinationBalanceAfter,
		Timestamp:               rec.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction committed event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		AggregateID: rec.ID,
		Topic:       topic,
		Key:         rec.ID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

// NewAccountClosedMessage builds the outbox message announcing that acc was closed.
func NewAccountClosedMessage(topic string, acc *domain.Account) (*domain.OutboxMessage, error) {
	payload, err := json.Marshal(event.AccountClosedEvent{
		AccountID: acc.ID,
		OwnerID:   acc.OwnerID,
		Timestamp: acc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account closed event: %w", err)
	}
	return &domain.OutboxMessage{
		ID:          util.GenerateUUID(),
		AggregateID: acc.ID,
		Topic:       topic,
		Key:         acc.ID,
		Payload:     payload,
		Status:      domain.OutboxStatusPending,
		CreatedAt:   acc.UpdatedAt,
	}, nil
}
