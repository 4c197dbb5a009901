// Package handler wires the gateway's HTTP surface: its own product, order
// and breaker endpoints plus pass-through routes to the backends.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hellodd/orderflow/pkg/breaker"
	"github.com/hellodd/orderflow/pkg/health"
	pkgmiddleware "github.com/hellodd/orderflow/pkg/middleware"
	"github.com/hellodd/orderflow/services/gateway/internal/config"
	gwmiddleware "github.com/hellodd/orderflow/services/gateway/internal/middleware"
	"github.com/hellodd/orderflow/services/gateway/internal/proxy"
)

// requestTimeout bounds every request, including /error-test/timeout.
const requestTimeout = 30 * time.Second

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Catalog  CatalogService
	Checkout CheckoutService
	Breakers *breaker.Registry
	Proxy    *proxy.ServiceProxy
	Health   *health.Handler
}

// NewRouter creates a chi router with global middleware, health endpoints,
// the gateway's own routes and proxy routes to inventory and pricing. ctx
// bounds background work such as rate limiter cleanup.
func NewRouter(ctx context.Context, cfg *config.Config, deps Deps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(gwmiddleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(requestTimeout))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.Tracing("gateway"))
	r.Use(pkgmiddleware.RequestLogger(logger))
	r.Use(pkgmiddleware.PrometheusMetrics("gateway"))

	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.With(metricsIPAllowlist(cfg.MetricsAllowedCIDRs, logger)).Handle("/metrics", promhttp.Handler())
	r.Get("/error-test/{kind}", errorTest(requestTimeout+5*time.Second))

	products := NewProductHandler(deps.Catalog, logger)
	orders := NewOrderHandler(deps.Checkout, logger)
	breakers := NewBreakerHandler(deps.Breakers, logger)
	inventory := deps.Proxy.Handler("inventory")
	pricing := deps.Proxy.Handler("pricing")

	// Auth applies to state-changing gateway routes when enabled.
	protected := func(r chi.Router) chi.Router {
		if !cfg.AuthRequired {
			return r
		}
		return r.With(pkgmiddleware.Auth(pkgmiddleware.NewJWTValidator([]byte(cfg.JWTSecret), cfg.JWTIssuer)))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.With(pkgmiddleware.CacheControl(time.Minute)).Get("/", products.List)
			r.Handle("/low-stock", inventory)
			r.Handle("/sku/*", inventory)
			r.Get("/{id}", products.Get)
			r.Handle("/{id}/stock", inventory)
		})

		protected(r).Post("/orders", orders.Place)

		r.Get("/breakers", breakers.List)
		protected(r).Post("/breakers/{name}/reset", breakers.Reset)

		r.Handle("/reservations", inventory)
		r.Handle("/reservations/*", inventory)
		r.Handle("/pricing/*", pricing)
	})

	return r
}
