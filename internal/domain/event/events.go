package event

import "time"

// TransactionCommittedEvent is published for every committed ledger operation.
type TransactionCommittedEvent struct {
	TransactionID           string    `json:"transaction_id"`
	Type                    string    `json:"type"`
	SourceAccountID         string    `json:"source_account_id,omitempty"`
	DestinationAccountID    string    `json:"destination_account_id,omitempty"`
	Amount                  int64     `json:"amount"`
	SourceBalanceAfter      *int64    `json:"source_balance_after,omitempty"`
	DestinationBalanceAfter *int64    `json:"destination_balance_after,omitempty"`
	Timestamp               time.Time `json:"timestamp"`
}

// AccountClosedEvent is published when an account moves to the closed state.
type AccountClosedEvent struct {
	AccountID string    `json:"account_id"`
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}
