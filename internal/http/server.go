// Package http serves the JSON API over the application façade.
package http

import (
	"context"
	"net/http"
	"time"

	"financeflow/internal/log"
	"financeflow/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	http.Server
	svc     *services.FinanceService
	logger  *log.Logger
	limiter *rateLimiter
	metrics *securityMetrics
}

func NewServer(addr string, svc *services.FinanceService, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	s := &Server{
		svc:     svc,
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: newRateLimiter(),
		metrics: &securityMetrics{},
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.RequestLogger(s.logger, func(r *http.Request) string { return middleware.GetReqID(r.Context()) }))
	r.Use(securityHeaders)
	r.Use(s.rateLimit)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/users", s.handleCreateUser)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/me", s.handleMe)

			r.Route("/users/{userID}", func(r chi.Router) {
				r.Use(s.requireSameUser)
				r.Patch("/", s.handleUpdateUser)
				r.Get("/accounts", s.handleListAccounts)
				r.Post("/accounts", s.handleCreateAccount)
				r.Post("/sync", s.handleSync)
				r.Get("/transactions", s.handleListTransactions)
				r.Get("/budgets", s.handleListBudgets)
				r.Put("/budgets/{category}", s.handleSetBudget)
				r.Get("/dashboard", s.handleDashboard)
				r.Get("/reports/{year}/{month}", s.handleReport)
				r.Get("/months/{year}/{month}", s.handleMonth)
				r.Get("/categories", s.handleCategories)
			})

			r.Route("/accounts/{accountID}", func(r chi.Router) {
				r.Post("/transactions", s.handleCreateTransaction)
				r.Post("/import", s.handleImport)
			})

			r.Route("/transactions/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetTransaction)
				r.Patch("/", s.handleUpdateTransaction)
				r.Delete("/", s.handleDeleteTransaction)
			})
		})
	})
	return r
}

// Shutdown stops background helpers, then drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	return s.Server.Shutdown(ctx)
}
