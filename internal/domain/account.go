package domain

import "time"

type AccountStatus string

const (
	AccountStatusActive AccountStatus = "ACTIVE"
	AccountStatusClosed AccountStatus = "CLOSED"
)

// Account is the materialized balance of one ledger account. Balance is kept in
// minor units and Version grows by one with every write.
type Account struct {
	ID        string
	OwnerID   string
	Balance   int64
	Version   int64
	Status    AccountStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) IsClosed() bool {
	return a.Status == AccountStatusClosed
}
