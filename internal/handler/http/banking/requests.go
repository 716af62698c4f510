package banking_http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/query"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/money"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AmountRequest is the body of deposit and withdraw. Amount is in major units and
// may be sent as a JSON number or string.
type AmountRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type TransferRequest struct {
	SourceAccountID      string          `json:"source_account_id"`
	DestinationAccountID string          `json:"destination_account_id"`
	Amount               decimal.Decimal `json:"amount"`
}

type AccountRequest struct {
	AccountID string `json:"account_id"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AccountResponse struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Balance          int64     `json:"balance"`
	BalanceFormatted string    `json:"balance_formatted"`
	Version          int64     `json:"version"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type RegisterResponse struct {
	User    UserResponse    `json:"user"`
	Account AccountResponse `json:"account"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ProfileResponse struct {
	User     UserResponse      `json:"user"`
	Accounts []AccountResponse `json:"accounts"`
}

type BalanceResponse struct {
	AccountID        string    `json:"account_id"`
	Balance          int64     `json:"balance"`
	BalanceFormatted string    `json:"balance_formatted"`
	Version          int64     `json:"version"`
	Status           string    `json:"status"`
	AsOf             time.Time `json:"as_of"`
}

type TransactionResponse struct {
	ID                      string    `json:"id"`
	Seq                     int64     `json:"seq"`
	Type                    string    `json:"type"`
	Status                  string    `json:"status"`
	SourceAccountID         string    `json:"source_account_id,omitempty"`
	DestinationAccountID    string    `json:"destination_account_id,omitempty"`
	Amount                  int64     `json:"amount"`
	AmountFormatted         string    `json:"amount_formatted"`
	SourceBalanceAfter      *int64    `json:"source_balance_after,omitempty"`
	DestinationBalanceAfter *int64    `json:"destination_balance_after,omitempty"`
	Reason                  string    `json:"reason,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
}

type TransactionListResponse struct {
	AccountID    string                `json:"account_id"`
	Transactions []TransactionResponse `json:"transactions"`
	NextBefore   int64                 `json:"next_before,omitempty"`
}

func newUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

func newAccountResponse(acc domain.Account) AccountResponse {
	return AccountResponse{
		ID:               acc.ID,
		OwnerID:          acc.OwnerID,
		Balance:          acc.Balance,
		BalanceFormatted: money.Format(acc.Balance),
		Version:          acc.Version,
		Status:           string(acc.Status),
		CreatedAt:        acc.CreatedAt,
		UpdatedAt:        acc.UpdatedAt,
	}
}

func newBalanceResponse(view *query.BalanceView) BalanceResponse {
	return BalanceResponse{
		AccountID:        view.AccountID,
		Balance:          view.Balance,
		BalanceFormatted: money.Format(view.Balance),
		Version:          view.Version,
		Status:           string(view.Status),
		AsOf:             view.AsOf,
	}
}

func newTransactionResponse(rec domain.TransactionRecord) TransactionResponse {
	return TransactionResponse{
		ID:                      rec.ID,
		Seq:                     rec.Seq,
		Type:                    string(rec.Type),
		Status:                  string(rec.Status),
		SourceAccountID:         rec.SourceAccountID,
		DestinationAccountID:    rec.DestinationAccountID,
		Amount:                  rec.Amount,
		AmountFormatted:         money.Format(rec.Amount),
		SourceBalanceAfter:      rec.SourceBalanceAfter,
		DestinationBalanceAfter: rec.DestinationBalanceAfter,
		Reason:                  rec.Reason,
		CreatedAt:               rec.CreatedAt,
	}
}

func newTransactionListResponse(accountID string, records []domain.TransactionRecord, limit int) TransactionListResponse {
	resp := TransactionListResponse{
		AccountID:    accountID,
		Transactions: make([]TransactionResponse, 0, len(records)),
	}
	for _, rec := range records {
		resp.Transactions = append(resp.Transactions, newTransactionResponse(rec))
	}
	if limit > 0 && len(records) == limit {
		resp.NextBefore = records[len(records)-1].Seq
	}
	return resp
}
