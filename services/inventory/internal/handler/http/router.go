package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hellodd/orderflow/pkg/health"
	"github.com/hellodd/orderflow/pkg/middleware"
)

// NewRouter creates a chi router with all inventory service routes registered.
func NewRouter(svc InventoryService, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("inventory"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("inventory"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	h := NewInventoryHandler(svc, logger)

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/low-stock", h.ListLowStock)
		r.Get("/sku/{sku}", h.GetProductBySKU)
		r.Get("/{id}", h.GetProduct)
		r.Get("/{id}/stock", h.GetStock)
		r.Put("/{id}/stock", h.UpdateStock)
	})

	r.Route("/api/v1/reservations", func(r chi.Router) {
		r.Post("/", h.Reserve)
		r.Get("/{id}", h.GetReservation)
		r.Post("/{id}/release", h.ReleaseReservation)
		r.Post("/{id}/confirm", h.ConfirmReservation)
	})

	return r
}
