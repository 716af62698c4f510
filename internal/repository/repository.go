// Package repository ties the individual repositories into units of work.
package repository

import (
	"context"

	"github.com/anshtyagi9/Banking-API-Project/internal/repository/accounts_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/outbox_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/transactions_repo"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/users_repo"
)

// Repositories is a set of repositories bound to one unit of work.
type Repositories interface {
	Accounts() accounts_repo.AccountRepository
	Transactions() transactions_repo.TransactionRepository
	Users() users_repo.UserRepository
	Outbox() outbox_repo.OutboxRepository
}

// TxManager runs work atomically: every write made through the Repositories handed
// to fn is committed together when fn returns nil, and discarded otherwise.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	// Repositories returns repositories outside of any unit of work. Each write
	// through them commits on its own.
	Repositories() Repositories
}
