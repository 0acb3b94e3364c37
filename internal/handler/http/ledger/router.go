package ledger_http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"ledger/internal/app/accounts"
	"ledger/internal/app/transfers"
)

func NewRouter(a accounts.AccountService, t transfers.TransferService, allowedOrigins []string, l *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	RegisterRoutes(r, a, t, l)
	return r
}

func RegisterRoutes(r chi.Router, a accounts.AccountService, t transfers.TransferService, l *zap.Logger) {
	handler := NewLedgerHandler(a, t, l.With(zap.String("component", "LedgerHTTPHandler")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ledger service is healthy!"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", handler.CreateAccountHandler)
			r.Route("/{accountNumber}", func(r chi.Router) {
				r.Get("/", handler.GetAccountHandler)
				r.Post("/deposit", handler.DepositHandler)
				r.Post("/withdraw", handler.WithdrawHandler)
				r.Get("/transfers", handler.ListTransfersHandler)
			})
		})
		r.Route("/transfers", func(r chi.Router) {
			r.Post("/", handler.TransferHandler)
			r.Get("/{transferId}", handler.GetTransferHandler)
		})
	})
}
