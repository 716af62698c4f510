package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/outbox"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

// Engine applies balance-changing operations. Each call is all-or-nothing across
// the account store and the transaction log.
type Engine interface {
	Deposit(ctx context.Context, accountID string, amount int64) (*domain.TransactionRecord, error)
	Withdraw(ctx context.Context, accountID string, amount int64) (*domain.TransactionRecord, error)
	Transfer(ctx context.Context, sourceID, destinationID string, amount int64) (*domain.TransactionRecord, error)
	CloseAccount(ctx context.Context, accountID string) (*domain.Account, error)
}

type Config struct {
	// MaxRetries is how many times an operation is re-run after a version conflict
	// before it fails with domain.ErrContention.
	MaxRetries   int
	RetryBackoff time.Duration

	// RecordRejected logs insufficient-funds rejections as REJECTED records.
	RecordRejected bool

	// EventsTopic enables outbox events when non-empty.
	EventsTopic string
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:     5,
		RetryBackoff:   2 * time.Millisecond,
		RecordRejected: true,
	}
}

type engine struct {
	txManager repository.TxManager
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(txManager repository.TxManager, cfg Config, logger *zap.Logger) Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &engine{
		txManager: txManager,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (e *engine) Deposit(ctx context.Context, accountID string, amount int64) (*domain.TransactionRecord, error) {
	if amount <= 0 {
		return nil, e.reject("deposit", domain.ErrInvalidAmount, zap.String("account_id", accountID), zap.Int64("amount", amount))
	}

	var rec *domain.TransactionRecord
	err := e.withRetry(ctx, "deposit", func(ctx context.Context, repos repository.Repositories) error {
		acc, err := e.loadActive(ctx, repos, accountID)
		if err != nil {
			return err
		}
		if amount > math.MaxInt64-acc.Balance {
			return domain.ErrInvalidAmount
		}
		updated, err := repos.Accounts().UpdateBalance(ctx, acc.ID, acc.Version, acc.Balance+amount)
		if err != nil {
			return err
		}
		rec = e.newRecord(domain.TransactionTypeDeposit, "", acc.ID, amount)
		rec.DestinationBalanceAfter = int64Ptr(updated.Balance)
		return e.commitRecord(ctx, repos, rec)
	})
	if err != nil {
		return nil, e.fail("deposit", err, zap.String("account_id", accountID), zap.Int64("amount", amount))
	}

	e.logger.Info("Deposit committed",
		zap.String("transaction_id", rec.ID),
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int64("balance", *rec.DestinationBalanceAfter))
	return rec, nil
}

func (e *engine) Withdraw(ctx context.Context, accountID string, amount int64) (*domain.TransactionRecord, error) {
	if amount <= 0 {
		return nil, e.reject("withdraw", domain.ErrInvalidAmount, zap.String("account_id", accountID), zap.Int64("amount", amount))
	}

	var (
		rec      *domain.TransactionRecord
		observed int64
	)
	err := e.withRetry(ctx, "withdraw", func(ctx context.Context, repos repository.Repositories) error {
		acc, err := e.loadActive(ctx, repos, accountID)
		if err != nil {
			return err
		}
		observed = acc.Balance
		if acc.Balance-amount < 0 {
			return domain.ErrInsufficientFunds
		}
		updated, err := repos.Accounts().UpdateBalance(ctx, acc.ID, acc.Version, acc.Balance-amount)
		if err != nil {
			return err
		}
		rec = e.newRecord(domain.TransactionTypeWithdraw, acc.ID, "", amount)
		rec.SourceBalanceAfter = int64Ptr(updated.Balance)
		return e.commitRecord(ctx, repos, rec)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			rejected := e.newRecord(domain.TransactionTypeWithdraw, accountID, "", amount)
			rejected.SourceBalanceAfter = int64Ptr(observed)
			e.recordRejection(ctx, rejected, err)
		}
		return nil, e.fail("withdraw", err, zap.String("account_id", accountID), zap.Int64("amount", amount))
	}

	e.logger.Info("Withdrawal committed",
		zap.String("transaction_id", rec.ID),
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.Int64("balance", *rec.SourceBalanceAfter))
	return rec, nil
}

func (e *engine) Transfer(ctx context.Context, sourceID, destinationID string, amount int64) (*domain.TransactionRecord, error) {
	fields := []zap.Field{
		zap.String("source_account_id", sourceID),
		zap.String("destination_account_id", destinationID),
		zap.Int64("amount", amount),
	}
	if amount <= 0 {
		return nil, e.reject("transfer", domain.ErrInvalidAmount, fields...)
	}
	if sourceID == destinationID {
		return nil, e.reject("transfer", domain.ErrSameAccount, fields...)
	}

	var (
		rec                      *domain.TransactionRecord
		observedSrc, observedDst int64
	)
	err := e.withRetry(ctx, "transfer", func(ctx context.Context, repos repository.Repositories) error {
		// Both accounts are read and written in ascending id order whatever the
		// direction of the transfer.
		firstID, secondID := orderedPair(sourceID, destinationID)
		first, err := e.loadActive(ctx, repos, firstID)
		if err != nil {
			return err
		}
		second, err := e.loadActive(ctx, repos, secondID)
		if err != nil {
			return err
		}

		src, dst := first, second
		if src.ID != sourceID {
			src, dst = second, first
		}
		observedSrc, observedDst = src.Balance, dst.Balance
		if src.Balance-amount < 0 {
			return domain.ErrInsufficientFunds
		}
		if amount > math.MaxInt64-dst.Balance {
			return domain.ErrInvalidAmount
		}

		next := map[string]int64{
			src.ID: src.Balance - amount,
			dst.ID: dst.Balance + amount,
		}
		after := make(map[string]int64, 2)
		for _, acc := range []*domain.Account{first, second} {
			updated, err := repos.Accounts().UpdateBalance(ctx, acc.ID, acc.Version, next[acc.ID])
			if err != nil {
				return err
			}
			after[acc.ID] = updated.Balance
		}

		rec = e.newRecord(domain.TransactionTypeTransfer, src.ID, dst.ID, amount)
		rec.SourceBalanceAfter = int64Ptr(after[src.ID])
		rec.DestinationBalanceAfter = int64Ptr(after[dst.ID])
		return e.commitRecord(ctx, repos, rec)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			rejected := e.newRecord(domain.TransactionTypeTransfer, sourceID, destinationID, amount)
			rejected.SourceBalanceAfter = int64Ptr(observedSrc)
			rejected.DestinationBalanceAfter = int64Ptr(observedDst)
			e.recordRejection(ctx, rejected, err)
		}
		return nil, e.fail("transfer", err, fields...)
	}

	e.logger.Info("Transfer committed",
		append(fields,
			zap.String("transaction_id", rec.ID),
			zap.Int64("source_balance", *rec.SourceBalanceAfter),
			zap.Int64("destination_balance", *rec.DestinationBalanceAfter))...)
	return rec, nil
}

func (e *engine) CloseAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var closed *domain.Account
	err := e.withRetry(ctx, "close account", func(ctx context.Context, repos repository.Repositories) error {
		acc, err := e.loadActive(ctx, repos, accountID)
		if err != nil {
			return err
		}
		if acc.Balance != 0 {
			return domain.ErrAccountNotEmpty
		}
		closed, err = repos.Accounts().UpdateStatus(ctx, acc.ID, acc.Version, domain.AccountStatusClosed)
		if err != nil {
			return err
		}
		if e.cfg.EventsTopic == "" {
			return nil
		}
		msg, err := outbox.NewAccountClosedMessage(e.cfg.EventsTopic, closed)
		if err != nil {
			return err
		}
		return repos.Outbox().CreateMessage(ctx, msg)
	})
	if err != nil {
		return nil, e.fail("close account", err, zap.String("account_id", accountID))
	}
	e.logger.Info("Account closed", zap.String("account_id", accountID))
	return closed, nil
}

// withRetry runs fn as one unit of work, re-running it from scratch on version
// conflicts until the retry budget is spent.
func (e *engine) withRetry(ctx context.Context, op string, fn func(ctx context.Context, repos repository.Repositories) error) error {
	attempts := e.cfg.MaxRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := e.txManager.WithinTx(ctx, fn)
		if !errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		e.logger.Debug("Version conflict, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts))
		if attempt == attempts {
			break
		}
		if err := e.backoff(ctx, attempt); err != nil {
			return err
		}
	}
	return fmt.Errorf("%s gave up after %d attempts: %w", op, attempts, domain.ErrContention)
}

func (e *engine) backoff(ctx context.Context, attempt int) error {
	if e.cfg.RetryBackoff <= 0 {
		return nil
	}
	base := e.cfg.RetryBackoff * time.Duration(attempt)
	delay := base/2 + time.Duration(rand.Int63n(int64(base)))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// loadActive reads an account that money may move through.
func (e *engine) loadActive(ctx context.Context, repos repository.Repositories, id string) (*domain.Account, error) {
	acc, err := repos.Accounts().GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.Balance < 0 {
		return nil, fmt.Errorf("account %s has balance %d: %w", acc.ID, acc.Balance, domain.ErrInvariantViolation)
	}
	if acc.IsClosed() {
		return nil, domain.ErrAccountClosed
	}
	return acc, nil
}

func (e *engine) newRecord(typ domain.TransactionType, sourceID, destinationID string, amount int64) *domain.TransactionRecord {
	return &domain.TransactionRecord{
		ID:                   util.GenerateUUID(),
		Type:                 typ,
		SourceAccountID:      sourceID,
		DestinationAccountID: destinationID,
		Amount:               amount,
		Status:               domain.TransactionStatusCommitted,
		CreatedAt:            e.now().UTC(),
	}
}

func (e *engine) commitRecord(ctx context.Context, repos repository.Repositories, rec *domain.TransactionRecord) error {
	if _, err := repos.Transactions().Append(ctx, rec); err != nil {
		return err
	}
	if e.cfg.EventsTopic == "" {
		return nil
	}
	msg, err := outbox.NewTransactionCommittedMessage(e.cfg.EventsTopic, rec)
	if err != nil {
		return err
	}
	return repos.Outbox().CreateMessage(ctx, msg)
}

// recordRejection writes an audit record for a rejected attempt in its own unit of
// work. Failing to write it never changes the outcome reported to the caller.
func (e *engine) recordRejection(ctx context.Context, rec *domain.TransactionRecord, cause error) {
	if !e.cfg.RecordRejected {
		return
	}
	rec.Status = domain.TransactionStatusRejected
	rec.Reason = cause.Error()
	err := e.txManager.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		_, err := repos.Transactions().Append(ctx, rec)
		return err
	})
	if err != nil {
		e.logger.Error("Failed to record rejected transaction",
			zap.String("transaction_id", rec.ID),
			zap.String("type", string(rec.Type)),
			zap.Error(err))
	}
}

func (e *engine) reject(op string, err error, fields ...zap.Field) error {
	e.logger.Info("Operation rejected", append(fields, zap.String("operation", op), zap.Error(err))...)
	return err
}

// fail logs err at a level matching its kind and returns it.
func (e *engine) fail(op string, err error, fields ...zap.Field) error {
	fields = append(fields, zap.String("operation", op), zap.Error(err))
	switch {
	case domain.IsBusinessRule(err):
		e.logger.Info("Operation rejected", fields...)
	case errors.Is(err, domain.ErrContention):
		e.logger.Warn("Operation abandoned under contention", fields...)
	default:
		e.logger.Error("Operation failed", fields...)
	}
	return err
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func int64Ptr(v int64) *int64 {
	return &v
}
