package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository"
)

// MiniStatementSize is the number of records in a mini-statement.
const MiniStatementSize = 5

// MaxHistoryPage caps the page size a caller may ask for.
const MaxHistoryPage = 100

type BalanceView struct {
	AccountID string
	OwnerID   string
	Balance   int64
	Version   int64
	Status    domain.AccountStatus
	AsOf      time.Time
}

type Profile struct {
	User     domain.User
	Accounts []domain.Account
}

// Service answers read-only questions. Nothing here mutates state, and every
// answer reflects committed data only.
type Service interface {
	Balance(ctx context.Context, accountID string) (*BalanceView, error)
	Account(ctx context.Context, accountID string) (*domain.Account, error)
	PrimaryAccount(ctx context.Context, ownerID string) (*domain.Account, error)
	Profile(ctx context.Context, ownerID string) (*Profile, error)
	History(ctx context.Context, accountID string, page domain.Page) ([]domain.TransactionRecord, error)
	MiniStatement(ctx context.Context, accountID string) ([]domain.TransactionRecord, error)
}

type service struct {
	txManager repository.TxManager
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(txManager repository.TxManager, logger *zap.Logger) Service {
	return &service{
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) Balance(ctx context.Context, accountID string) (*BalanceView, error) {
	acc, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &BalanceView{
		AccountID: acc.ID,
		OwnerID:   acc.OwnerID,
		Balance:   acc.Balance,
		Version:   acc.Version,
		Status:    acc.Status,
		AsOf:      s.now().UTC(),
	}, nil
}

func (s *service) Account(ctx context.Context, accountID string) (*domain.Account, error) {
	acc, err := s.txManager.Repositories().Accounts().GetAccount(ctx, accountID)
	if err != nil {
		if !errors.Is(err, domain.ErrAccountNotFound) {
			s.logger.Error("Failed to load account", zap.String("account_id", accountID), zap.Error(err))
		}
		return nil, err
	}
	return acc, nil
}

// PrimaryAccount returns the oldest active account of ownerID.
func (s *service) PrimaryAccount(ctx context.Context, ownerID string) (*domain.Account, error) {
	accounts, err := s.txManager.Repositories().Accounts().ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to list accounts", zap.String("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	for i := range accounts {
		if !accounts[i].IsClosed() {
			return &accounts[i], nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *service) Profile(ctx context.Context, ownerID string) (*Profile, error) {
	repos := s.txManager.Repositories()
	user, err := repos.Users().GetUserByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	accounts, err := repos.Accounts().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of %s: %w", ownerID, err)
	}
	user.PasswordHash = ""
	return &Profile{User: *user, Accounts: accounts}, nil
}

// History returns the records touching accountID, newest first. A zero Limit
// returns everything older than BeforeSeq.
func (s *service) History(ctx context.Context, accountID string, page domain.Page) ([]domain.TransactionRecord, error) {
	if page.Limit < 0 || page.BeforeSeq < 0 {
		return nil, domain.ErrInvalidInput
	}
	if page.Limit > MaxHistoryPage {
		page.Limit = MaxHistoryPage
	}
	repos := s.txManager.Repositories()
	if _, err := repos.Accounts().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	records, err := repos.Transactions().ListByAccount(ctx, accountID, page)
	if err != nil {
		s.logger.Error("Failed to list transactions", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}
	return records, nil
}

func (s *service) MiniStatement(ctx context.Context, accountID string) ([]domain.TransactionRecord, error) {
	repos := s.txManager.Repositories()
	if _, err := repos.Accounts().GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	records, err := repos.Transactions().LastN(ctx, accountID, MiniStatementSize)
	if err != nil {
		s.logger.Error("Failed to load mini-statement", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}
	return records, nil
}
