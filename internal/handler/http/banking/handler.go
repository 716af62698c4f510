package banking_http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/auth"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/ledger"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/query"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/money"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

const defaultHistoryLimit = 20

type Handler struct {
	auth    auth.Service
	engine  ledger.Engine
	queries query.Service
	logger  *zap.Logger
}

func NewHandler(a auth.Service, e ledger.Engine, q query.Service, l *zap.Logger) *Handler {
	return &Handler{auth: a, engine: e, queries: q, logger: l}
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, account, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		FullName: req.FullName,
		Email:    req.Email,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, RegisterResponse{
		User:    newUserResponse(*user),
		Account: newAccountResponse(*account),
	})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: session.Token,
		TokenType:   "Bearer",
		ExpiresAt:   session.ExpiresAt,
	})
}

func (h *Handler) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	profile, err := h.queries.Profile(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := ProfileResponse{
		User:     newUserResponse(profile.User),
		Accounts: make([]AccountResponse, 0, len(profile.Accounts)),
	}
	for _, acc := range profile.Accounts {
		resp.Accounts = append(resp.Accounts, newAccountResponse(acc))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := h.resolveAccount(r, r.URL.Query().Get("account_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.queries.Balance(r.Context(), acc.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newBalanceResponse(view))
}

func (h *Handler) OpenAccountHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	acc, err := h.auth.OpenAccount(r.Context(), ownerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newAccountResponse(*acc))
}

func (h *Handler) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.resolveAccount(r, req.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	closed, err := h.engine.CloseAccount(r.Context(), acc.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newAccountResponse(*closed))
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := toMinor(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.resolveAccount(r, req.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.engine.Deposit(r.Context(), acc.ID, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionResponse(*rec))
}

func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req AmountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := toMinor(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	acc, err := h.resolveAccount(r, req.AccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.engine.Withdraw(r.Context(), acc.ID, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionResponse(*rec))
}

// TransferHandler requires the caller to own the source account only.
func (h *Handler) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	amount, err := toMinor(req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.DestinationAccountID == "" {
		h.writeError(w, r, fmt.Errorf("destination_account_id is required: %w", domain.ErrInvalidInput))
		return
	}
	if !util.IsUUID(req.DestinationAccountID) {
		h.writeError(w, r, domain.ErrAccountNotFound)
		return
	}
	src, err := h.resolveAccount(r, req.SourceAccountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec, err := h.engine.Transfer(r.Context(), src.ID, req.DestinationAccountID, amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionResponse(*rec))
}

func (h *Handler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	page := domain.Page{Limit: defaultHistoryLimit}
	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			h.writeError(w, r, fmt.Errorf("limit must be a positive integer: %w", domain.ErrInvalidInput))
			return
		}
		page.Limit = min(limit, query.MaxHistoryPage)
	}
	if raw := params.Get("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before <= 0 {
			h.writeError(w, r, fmt.Errorf("before must be a positive sequence number: %w", domain.ErrInvalidInput))
			return
		}
		page.BeforeSeq = before
	}
	acc, err := h.resolveAccount(r, params.Get("account_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.queries.History(r.Context(), acc.ID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionListResponse(acc.ID, records, page.Limit))
}

func (h *Handler) MiniStatementHandler(w http.ResponseWriter, r *http.Request) {
	acc, err := h.resolveAccount(r, r.URL.Query().Get("account_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	records, err := h.queries.MiniStatement(r.Context(), acc.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newTransactionListResponse(acc.ID, records, 0))
}

// resolveAccount returns the account the caller asked for, or the caller's primary
// account when accountID is empty.
func (h *Handler) resolveAccount(r *http.Request, accountID string) (*domain.Account, error) {
	ownerID, ok := ownerFromContext(r.Context())
	if !ok {
		return nil, errUnauthorized
	}
	if accountID == "" {
		return h.queries.PrimaryAccount(r.Context(), ownerID)
	}
	if !util.IsUUID(accountID) {
		return nil, domain.ErrAccountNotFound
	}
	acc, err := h.queries.Account(r.Context(), accountID)
	if err != nil {
		return nil, err
	}
	if acc.OwnerID != ownerID {
		return nil, errForbidden
	}
	return acc, nil
}

func toMinor(amount decimal.Decimal) (int64, error) {
	minor, err := money.ToMinor(amount)
	if err != nil {
		return 0, fmt.Errorf("amount %s: %w", amount.String(), err)
	}
	return minor, nil
}
