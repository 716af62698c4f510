package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/database"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/transactions_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

const recordColumns = `seq, id, type, source_account_id, destination_account_id, amount,
	source_balance_after, destination_balance_after, status, reason, created_at`

type TransactionRepository struct {
	querier domain.Querier
}

func NewTransactionRepository(querier domain.Querier) *TransactionRepository {
	return &TransactionRepository{querier: querier}
}

func (r *TransactionRepository) Append(ctx context.Context, rec *domain.TransactionRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = util.GenerateUUID()
	}
	query := `
		INSERT INTO transaction_records (id, type, source_account_id, destination_account_id, amount,
			source_balance_after, destination_balance_after, status, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq
	`
	err := r.querier.QueryRowContext(ctx, query,
		rec.ID,
		rec.Type,
		nullString(rec.SourceAccountID),
		nullString(rec.DestinationAccountID),
		rec.Amount,
		nullInt64(rec.SourceBalanceAfter),
		nullInt64(rec.DestinationBalanceAfter),
		rec.Status,
		rec.Reason,
		rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		if database.ErrorCode(err) == database.CodeForeignKeyViolation {
			return "", fmt.Errorf("transaction %s: %w", rec.ID, domain.ErrReferentialIntegrity)
		}
		return "", fmt.Errorf("failed to append transaction record %s: %w", rec.ID, err)
	}
	return rec.ID, nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID string, page domain.Page) ([]domain.TransactionRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM transaction_records
		WHERE (source_account_id = $1 OR destination_account_id = $1)
		  AND ($2::bigint = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT NULLIF($3, 0)
	`
	rows, err := r.querier.QueryContext(ctx, query, accountID, page.BeforeSeq, page.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	records := []domain.TransactionRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction records: %w", err)
	}
	return records, nil
}

func (r *TransactionRepository) LastN(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error) {
	if n <= 0 {
		return []domain.TransactionRecord{}, nil
	}
	return r.ListByAccount(ctx, accountID, domain.Page{Limit: n})
}

func scanRecord(rows *sql.Rows) (domain.TransactionRecord, error) {
	var (
		rec         domain.TransactionRecord
		source      sql.NullString
		destination sql.NullString
		sourceBal   sql.NullInt64
		destBal     sql.NullInt64
	)
	err := rows.Scan(
		&rec.Seq,
		&rec.ID,
		&rec.Type,
		&source,
		&destination,
		&rec.Amount,
		&sourceBal,
		&destBal,
		&rec.Status,
		&rec.Reason,
		&rec.CreatedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.SourceAccountID = source.String
	rec.DestinationAccountID = destination.String
	if sourceBal.Valid {
		v := sourceBal.Int64
		rec.SourceBalanceAfter = &v
	}
	if destBal.Valid {
		v := destBal.Int64
		rec.DestinationBalanceAfter = &v
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

var _ transactions_repo.TransactionRepository = (*TransactionRepository)(nil)
