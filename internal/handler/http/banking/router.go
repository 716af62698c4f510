package banking_http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anshtyagi9/Banking-API-Project/internal/app/auth"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/ledger"
	"github.com/anshtyagi9/Banking-API-Project/internal/app/query"
)

func RegisterRoutes(r chi.Router, a auth.Service, e ledger.Engine, q query.Service, l *zap.Logger) {
	handler := NewHandler(a, e, q, l.With(zap.String("component", "BankingHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Banking service is healthy!"))
	})

	r.Post("/register", handler.RegisterHandler)
	r.Post("/login", handler.LoginHandler)

	r.Group(func(r chi.Router) {
		r.Use(handler.Authenticate)

		r.Route("/account", func(r chi.Router) {
			r.Post("/", handler.OpenAccountHandler)
			r.Get("/profile", handler.ProfileHandler)
			r.Get("/balance", handler.BalanceHandler)
			r.Post("/close", handler.CloseAccountHandler)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/deposit", handler.DepositHandler)
			r.Post("/withdraw", handler.WithdrawHandler)
			r.Post("/transfer", handler.TransferHandler)
			r.Get("/history", handler.HistoryHandler)
			r.Get("/mini-statement", handler.MiniStatementHandler)
		})
	})
}
