package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/infrastructure/database"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/accounts_repo"
	accounts_pg "github.com/anshtyagi9/Banking-API-Project/internal/repository/accounts_repo/postgres"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/outbox_repo"
	outbox_pg "github.com/anshtyagi9/Banking-API-Project/internal/repository/outbox_repo/postgres"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/transactions_repo"
	transactions_pg "github.com/anshtyagi9/Banking-API-Project/internal/repository/transactions_repo/postgres"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/users_repo"
	users_pg "github.com/anshtyagi9/Banking-API-Project/internal/repository/users_repo/postgres"
)

type repositories struct {
	accounts     *accounts_pg.AccountRepository
	transactions *transactions_pg.TransactionRepository
	users        *users_pg.UserRepository
	outbox       *outbox_pg.OutboxRepository
}

func newRepositories(q domain.Querier) *repositories {
	return &repositories{
		accounts:     accounts_pg.NewAccountRepository(q),
		transactions: transactions_pg.NewTransactionRepository(q),
		users:        users_pg.NewUserRepository(q),
		outbox:       outbox_pg.NewOutboxRepository(q),
	}
}

func (r *repositories) Accounts() accounts_repo.AccountRepository { return r.accounts }
func (r *repositories) Transactions() transactions_repo.TransactionRepository { return r.transactions }
func (r *repositories) Users() users_repo.UserRepository { return r.users }
func (r *repositories) Outbox() outbox_repo.OutboxRepository { return r.outbox }

// TxManager runs units of work as READ COMMITTED Postgres transactions.
type TxManager struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewTxManager(db *sql.DB, logger *zap.Logger) *TxManager {
	return &TxManager{db: db, logger: logger}
}

func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		m.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recovered panic inside transaction, rolling back", zap.Any("panic", r))
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			m.logger.Error("Failed to roll back transaction", zap.Error(rbErr))
		}
		if database.IsRetryable(err) {
			return fmt.Errorf("%v: %w", err, domain.ErrVersionConflict)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if database.IsRetryable(err) {
			return fmt.Errorf("commit raced another transaction: %w", domain.ErrVersionConflict)
		}
		m.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (m *TxManager) Repositories() repository.Repositories {
	return newRepositories(m.db)
}

var _ repository.TxManager = (*TxManager)(nil)
