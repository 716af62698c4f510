package banking_http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/auth"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/ledger"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/query"
	"github.com/anshtyagi9/Banking-API-Project/internal/domain"
	"github.com/anshtyagi9/Banking-API-Project/internal/repository/memory"
	"github.com/anshtyagi9/Banking-API-Project/internal/util"
)

func newTestServer(t *testing.T) *httptest.Server {
	return newTestServerWith(t, func(e ledger.Engine) ledger.Engine { return e })
}

func newTestServerWith(t *testing.T, wrap func(ledger.Engine) ledger.Engine) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	logger := zap.NewNop()
	authService := auth.NewService(store, auth.NewTokenIssuer("test-secret", time.Hour), bcrypt.MinCost, logger)
	engine := wrap(ledger.NewEngine(store, ledger.DefaultConfig(), logger))
	queries := query.NewService(store, logger)

	r := chi.NewRouter()
	RegisterRoutes(r, authService, engine, queries, logger)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type customer struct {
	token     string
	accountID string
}

func signUp(t *testing.T, srv *httptest.Server, username string) customer {
	t.Helper()
	var reg RegisterResponse
	status := doJSON(t, srv, http.MethodPost, "/register", "", RegisterRequest{
		Username: username,
		Password: "password1",
		FullName: "User " + username,
	}, &reg)
	require.Equal(t, http.StatusCreated, status)

	var login LoginResponse
	status = doJSON(t, srv, http.MethodPost, "/login", "", LoginRequest{Username: username, Password: "password1"}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.AccessToken)
	return customer{token: login.AccessToken, accountID: reg.Account.ID}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDepositWithdrawAndBalance(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")

	var rec TransactionResponse
	status := doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token,
		map[string]any{"amount": "100.50"}, &rec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "DEPOSIT", rec.Type)
	assert.Equal(t, int64(10050), rec.Amount)
	assert.Equal(t, "100.50", rec.AmountFormatted)

	status = doJSON(t, srv, http.MethodPost, "/transactions/withdraw", alice.token,
		map[string]any{"account_id": alice.accountID, "amount": 0.5}, &rec)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, rec.SourceBalanceAfter)
	assert.Equal(t, int64(10000), *rec.SourceBalanceAfter)

	var bal BalanceResponse
	status = doJSON(t, srv, http.MethodGet, "/account/balance?account_id="+alice.accountID, alice.token, nil, &bal)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(10000), bal.Balance)
	assert.Equal(t, "100.00", bal.BalanceFormatted)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bob")

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		want   int
	}{
		{"zero amount", http.MethodPost, "/transactions/deposit", alice.token, map[string]any{"amount": "0"}, http.StatusBadRequest},
		{"negative amount", http.MethodPost, "/transactions/deposit", alice.token, map[string]any{"amount": "-5"}, http.StatusBadRequest},
		{"too precise", http.MethodPost, "/transactions/deposit", alice.token, map[string]any{"amount": "1.001"}, http.StatusBadRequest},
		{"insufficient funds", http.MethodPost, "/transactions/withdraw", alice.token, map[string]any{"amount": "1"}, http.StatusConflict},
		{"same account", http.MethodPost, "/transactions/transfer", alice.token, map[string]any{"destination_account_id": alice.accountID, "amount": "1"}, http.StatusBadRequest},
		{"unknown destination", http.MethodPost, "/transactions/transfer", alice.token, map[string]any{"destination_account_id": util.GenerateUUID(), "amount": "1"}, http.StatusNotFound},
		{"not owner", http.MethodPost, "/transactions/deposit", alice.token, map[string]any{"account_id": bob.accountID, "amount": "1"}, http.StatusForbidden},
		{"missing token", http.MethodGet, "/account/profile", "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/account/profile", "not-a-token", nil, http.StatusUnauthorized},
		{"unknown account", http.MethodGet, "/account/balance?account_id=" + util.GenerateUUID(), alice.token, nil, http.StatusNotFound},
		{"bad limit", http.MethodGet, "/transactions/history?limit=abc", alice.token, nil, http.StatusBadRequest},
		{"duplicate user", http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: "password1"}, http.StatusConflict},
		{"bad password", http.MethodPost, "/login", "", LoginRequest{Username: "alice", Password: "nope"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var apiErr errorResponse
			status := doJSON(t, srv, tc.method, tc.path, tc.token, tc.body, &apiErr)
			assert.Equal(t, tc.want, status)
			assert.Equal(t, tc.want, apiErr.Code)
			assert.NotEmpty(t, apiErr.Error)
		})
	}
}

type contendedEngine struct {
	ledger.Engine
}

func (contendedEngine) Deposit(context.Context, string, int64) (*domain.TransactionRecord, error) {
	return nil, fmt.Errorf("deposit gave up after 6 attempts: %w", domain.ErrContention)
}

func TestContentionIsServiceUnavailable(t *testing.T) {
	srv := newTestServerWith(t, func(e ledger.Engine) ledger.Engine { return contendedEngine{Engine: e} })
	alice := signUp(t, srv, "alice")

	var apiErr errorResponse
	status := doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token, map[string]any{"amount": "1"}, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Code)
	assert.NotEmpty(t, apiErr.Error)
}

func TestTransferBetweenCustomers(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	bob := signUp(t, srv, "bob")

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token,
		map[string]any{"amount": "100"}, nil))
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/transactions/deposit", bob.token,
		map[string]any{"amount": "50"}, nil))

	var rec TransactionResponse
	status := doJSON(t, srv, http.MethodPost, "/transactions/transfer", alice.token, TransferRequest{
		DestinationAccountID: bob.accountID,
	}, &rec)
	require.Equal(t, http.StatusBadRequest, status)

	status = doJSON(t, srv, http.MethodPost, "/transactions/transfer", alice.token, map[string]any{
		"destination_account_id": bob.accountID,
		"amount":                 "30",
	}, &rec)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(7000), *rec.SourceBalanceAfter)
	assert.Equal(t, int64(8000), *rec.DestinationBalanceAfter)

	var bal BalanceResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/account/balance", bob.token, nil, &bal))
	assert.Equal(t, int64(8000), bal.Balance)

	// Bob cannot read Alice's history.
	status = doJSON(t, srv, http.MethodGet, "/transactions/history?account_id="+alice.accountID, bob.token, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestHistoryAndMiniStatement(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")
	for i := 1; i <= 7; i++ {
		require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token,
			map[string]any{"amount": i}, nil))
	}

	var mini TransactionListResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/transactions/mini-statement", alice.token, nil, &mini))
	require.Len(t, mini.Transactions, 5)
	assert.Equal(t, int64(700), mini.Transactions[0].Amount)

	var page TransactionListResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/transactions/history?limit=3", alice.token, nil, &page))
	require.Len(t, page.Transactions, 3)
	assert.Equal(t, mini.Transactions[:3], page.Transactions)
	require.NotZero(t, page.NextBefore)

	var next TransactionListResponse
	path := "/transactions/history?limit=10&before=" + strconv.FormatInt(page.NextBefore, 10)
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, path, alice.token, nil, &next))
	require.Len(t, next.Transactions, 4)
	assert.Equal(t, int64(400), next.Transactions[0].Amount)
	assert.Zero(t, next.NextBefore)
}

func TestOpenAndCloseAccount(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice")

	var second AccountResponse
	require.Equal(t, http.StatusCreated, doJSON(t, srv, http.MethodPost, "/account", alice.token, nil, &second))
	assert.NotEqual(t, alice.accountID, second.ID)

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token,
		map[string]any{"account_id": second.ID, "amount": "5"}, nil))

	status := doJSON(t, srv, http.MethodPost, "/account/close", alice.token, AccountRequest{AccountID: second.ID}, nil)
	assert.Equal(t, http.StatusConflict, status)

	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/transactions/withdraw", alice.token,
		map[string]any{"account_id": second.ID, "amount": "5"}, nil))

	var closed AccountResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodPost, "/account/close", alice.token, AccountRequest{AccountID: second.ID}, &closed))
	assert.Equal(t, "CLOSED", closed.Status)

	var profile ProfileResponse
	require.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/account/profile", alice.token, nil, &profile))
	assert.Equal(t, "alice", profile.User.Username)
	assert.Len(t, profile.Accounts, 2)

	status = doJSON(t, srv, http.MethodPost, "/transactions/deposit", alice.token,
		map[string]any{"account_id": second.ID, "amount": "5"}, nil)
	assert.Equal(t, http.StatusConflict, status)
}
