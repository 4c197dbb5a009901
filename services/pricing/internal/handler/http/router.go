package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hellodd/orderflow/pkg/health"
	"github.com/hellodd/orderflow/pkg/middleware"
)

// NewRouter creates a chi router with all pricing service routes registered.
func NewRouter(svc PricingService, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("pricing"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("pricing"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewPricingHandler(svc, logger)

	r.Route("/api/v1/pricing", func(r chi.Router) {
		r.Post("/quote", h.Quote)
		r.With(middleware.CacheControl(time.Minute)).Get("/rules", h.ListRules)
	})

	return r
}
