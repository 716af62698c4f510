package transactions_repo

import (
	"context"

	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
)

// TransactionRepository is the append-only transaction log.
type TransactionRepository interface {
	// Append stores rec and returns its id. Seq is filled in once the store assigns it.
	Append(ctx context.Context, rec *domain.TransactionRecord) (string, error)
	ListByAccount(ctx context.Context, accountID string, page domain.Page) ([]domain.TransactionRecord, error)
	LastN(ctx context.Context, accountID string, n int) ([]domain.TransactionRecord, error)
}
