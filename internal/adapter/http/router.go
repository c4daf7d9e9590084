package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/payflow/internal/adapter/http/handler"
	"github.com/iho/payflow/internal/adapter/http/middleware"
	"github.com/iho/payflow/internal/infrastructure/auth"
	"github.com/iho/payflow/internal/infrastructure/metrics"
	"github.com/iho/payflow/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	PaymentHandler   *handler.PaymentHandler
	LedgerHandler    *handler.LedgerHandler
	AdminHandler     *handler.AdminHandler
	HealthHandler    *handler.HealthHandler
	IdempotencyStore usecase.IdempotencyStore
	JWTManager       *auth.JWTManager
	Metrics          *metrics.Metrics
	RateLimiter      *middleware.RateLimiter
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health and metrics endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Idempotency middleware for mutating requests
		if cfg.IdempotencyStore != nil {
			idempotencyMiddleware := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore)
			r.Use(idempotencyMiddleware.Wrap)
		}

		// Payments
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", cfg.PaymentHandler.Create)
			r.Get("/{id}", cfg.PaymentHandler.Get)
			r.Post("/{id}/authorize", cfg.PaymentHandler.Authorize)
			r.Post("/{id}/cancel", cfg.PaymentHandler.Cancel)
			r.Get("/{id}/orders", cfg.PaymentHandler.ListOrders)
			r.Get("/{id}/client-secret", cfg.PaymentHandler.ClientSecret)
		})

		// Ledger
		r.Route("/ledger", func(r chi.Router) {
			r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)
			r.Get("/accounts/{code}/balance", cfg.LedgerHandler.AccountBalance)
		})

		// Admin, token-guarded
		if cfg.AdminHandler != nil && cfg.JWTManager != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AuthMiddleware(cfg.JWTManager))
				r.Use(middleware.RequireAdmin)
				r.Get("/outbox/stats", cfg.AdminHandler.OutboxStats)
				r.Get("/retries/quarantine", cfg.AdminHandler.RetryQuarantine)
			})
		}
	})

	return r
}
