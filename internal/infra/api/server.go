package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"collective-ledger/internal/usecase"
)

// Server exposes the ledger, refunds, orders and balances over HTTP.
type Server struct {
	ledger  usecase.LedgerUseCase
	refunds usecase.RefundUseCase
	orders  usecase.OrderUseCase
	balance usecase.BalanceUseCase
	auth    *Authenticator
	log     *zerolog.Logger

	allowedOrigins []string
	timeout        time.Duration
}

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewServer(
	ledger usecase.LedgerUseCase,
	refunds usecase.RefundUseCase,
	orders usecase.OrderUseCase,
	balance usecase.BalanceUseCase,
	auth *Authenticator,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "API").Logger()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		ledger:         ledger,
		refunds:        refunds,
		orders:         orders,
		balance:        balance,
		auth:           auth,
		log:            &l,
		allowedOrigins: opts.AllowedOrigins,
		timeout:        opts.RequestTimeout,
	}
}

// Handler builds the router. Transaction reads are public; everything that
// moves money or reveals balances requires an actor token.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))
	if len(s.allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.timeout))

		r.Get("/accounts/{id}/transactions", s.listAccountTransactions)
		r.Get("/orders/{id}/transactions", s.listOrderTransactions)
		r.Get("/transactions/{id}", s.getTransaction)
		r.Get("/transactions/groups/{group}", s.getGroup)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(s.auth))

			r.Get("/accounts/{id}/balance", s.getBalance)
			r.Get("/accounts/{id}/balances/hosts", s.getHostBalances)
			r.Post("/accounts/{id}/carryforward", s.createCarryforward)
			r.Post("/accounts/{id}/recurring/cancel", s.deactivateRecurring)
			r.Post("/orders", s.createOrder)
			r.Get("/orders/{id}", s.getOrder)
			r.Post("/transactions/{id}/refund", s.refund)
			r.Delete("/transactions/groups/{group}", s.deleteGroup)
		})
	})
	return r
}
