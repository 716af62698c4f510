package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/database"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/accounts_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

const accountColumns = `id, owner_id, balance, version, status, created_at, updated_at`

type AccountRepository struct {
	querier domain.Querier
	now     func() time.Time
}

func NewAccountRepository(querier domain.Querier) *AccountRepository {
	return &AccountRepository{querier: querier, now: time.Now}
}

func (r *AccountRepository) CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	now := r.now().UTC()
	account := &domain.Account{
		ID:        util.GenerateUUID(),
		OwnerID:   ownerID,
		Balance:   0,
		Version:   1,
		Status:    domain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO accounts (id, owner_id, balance, version, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.querier.ExecContext(ctx, query,
		account.ID, account.OwnerID, account.Balance, account.Version, account.Status, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		if database.ErrorCode(err) == database.CodeForeignKeyViolation {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to create account for owner %s: %w", ownerID, err)
	}
	return account, nil
}

func (r *AccountRepository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if isMissingAccount(err) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return account, nil
}

func (r *AccountRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.querier.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) UpdateBalance(ctx context.Context, id string, expectedVersion int64, newBalance int64) (*domain.Account, error) {
	if newBalance < 0 {
		return nil, fmt.Errorf("refusing negative balance %d for account %s: %w", newBalance, id, domain.ErrInvariantViolation)
	}
	query := `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING ` + accountColumns
	row := r.querier.QueryRowContext(ctx, query, newBalance, r.now().UTC(), id, expectedVersion)
	return r.finishVersionedUpdate(ctx, id, row)
}

func (r *AccountRepository) UpdateStatus(ctx context.Context, id string, expectedVersion int64, status domain.AccountStatus) (*domain.Account, error) {
	query := `
		UPDATE accounts
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING ` + accountColumns
	row := r.querier.QueryRowContext(ctx, query, status, r.now().UTC(), id, expectedVersion)
	return r.finishVersionedUpdate(ctx, id, row)
}

// finishVersionedUpdate tells a stale version apart from a missing account when the
// guarded UPDATE matched no row.
func (r *AccountRepository) finishVersionedUpdate(ctx context.Context, id string, row *sql.Row) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		switch {
		case database.ErrorCode(err) == database.CodeInvalidTextRepr:
			return nil, domain.ErrAccountNotFound
		case database.ErrorCode(err) == database.CodeCheckViolation:
			return nil, fmt.Errorf("balance check failed for account %s: %w", id, domain.ErrInvariantViolation)
		case database.IsRetryable(err):
			return nil, fmt.Errorf("concurrent update of account %s: %w", id, domain.ErrVersionConflict)
		}
		return nil, fmt.Errorf("failed to update account %s: %w", id, err)
	}

	var exists int
	err = r.querier.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check account %s after update: %w", id, err)
	}
	return nil, domain.ErrVersionConflict
}

// isMissingAccount also covers ids that are not UUIDs, which the column type rejects
// with 22P02 before any row is looked at.
func isMissingAccount(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || database.ErrorCode(err) == database.CodeInvalidTextRepr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	account := &domain.Account{}
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.Balance,
		&account.Version,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

var _ accounts_repo.AccountRepository = (*AccountRepository)(nil)
