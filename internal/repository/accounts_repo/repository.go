package accounts_repo

import (
	"context"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

type AccountRepository interface {
	CreateAccount(ctx context.Context, ownerID string) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	// UpdateBalance writes newBalance only if the stored version still equals
	// expectedVersion, bumping the version in the same write.
	UpdateBalance(ctx context.Context, id string, expectedVersion int64, newBalance int64) (*domain.Account, error)
	UpdateStatus(ctx context.Context, id string, expectedVersion int64, status domain.AccountStatus) (*domain.Account, error)
}
