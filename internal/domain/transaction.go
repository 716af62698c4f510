package domain

import "time"

type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeTransfer TransactionType = "TRANSFER"
)

type TransactionStatus string

const (
	TransactionStatusCommitted TransactionStatus = "COMMITTED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
)

// TransactionRecord is one immutable entry of the transaction log.
// SourceAccountID is empty for deposits, DestinationAccountID is empty for withdrawals.
type TransactionRecord struct {
	ID                      string
	Seq                     int64
	Type                    TransactionType
	SourceAccountID         string
	DestinationAccountID    string
	Amount                  int64
	SourceBalanceAfter      *int64
	DestinationBalanceAfter *int64
	Status                  TransactionStatus
	Reason                  string
	CreatedAt               time.Time
}

// AccountIDs returns the non-empty account references of the record.
func (r *TransactionRecord) AccountIDs() []string {
	ids := make([]string, 0, 2)
	if r.SourceAccountID != "" {
		ids = append(ids, r.SourceAccountID)
	}
	if r.DestinationAccountID != "" {
		ids = append(ids, r.DestinationAccountID)
	}
	return ids
}

// Page selects a window of the transaction log, newest first. BeforeSeq of zero
// starts at the newest record and Limit of zero means no limit.
type Page struct {
	BeforeSeq int64
	Limit     int
}
