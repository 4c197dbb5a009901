package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hellodd/orderflow/pkg/breaker"
	"github.com/hellodd/orderflow/pkg/database"
	"github.com/hellodd/orderflow/pkg/health"
	"github.com/hellodd/orderflow/pkg/httpclient"
	pkgkafka "github.com/hellodd/orderflow/pkg/kafka"
	"github.com/hellodd/orderflow/pkg/saga"
	"github.com/hellodd/orderflow/pkg/tracing"
	"github.com/hellodd/orderflow/services/gateway/internal/cache"
	"github.com/hellodd/orderflow/services/gateway/internal/client"
	"github.com/hellodd/orderflow/services/gateway/internal/config"
	"github.com/hellodd/orderflow/services/gateway/internal/event"
	"github.com/hellodd/orderflow/services/gateway/internal/handler"
	"github.com/hellodd/orderflow/services/gateway/internal/payment"
	"github.com/hellodd/orderflow/services/gateway/internal/proxy"
	"github.com/hellodd/orderflow/services/gateway/internal/service"
)

// Breaker names. One per guarded dependency.
const (
	breakerInventory = "inventory"
	breakerPricing   = "pricing"
	breakerPayment   = "payment"
)

// App wires together all dependencies and runs the API gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	cancel         context.CancelFunc
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance. Redis and Kafka are optional:
// the gateway starts without them and degrades.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	registry := breaker.NewRegistry()
	newBreaker := func(name string, opts ...breaker.Option) (*breaker.CircuitBreaker, error) {
		cb, err := breaker.New(cfg.Breaker.For(name), append([]breaker.Option{breaker.WithLogger(logger)}, opts...)...)
		if err != nil {
			return nil, fmt.Errorf("create %s breaker: %w", name, err)
		}
		if err := registry.Register(cb); err != nil {
			return nil, err
		}
		return cb, nil
	}
	inventoryCB, err := newBreaker(breakerInventory)
	if err != nil {
		return nil, err
	}
	pricingCB, err := newBreaker(breakerPricing)
	if err != nil {
		return nil, err
	}
	// Declines are answers, not outages.
	paymentCB, err := newBreaker(breakerPayment, breaker.WithOutcomeClassifier(payment.Classify))
	if err != nil {
		return nil, err
	}

	doer := httpclient.New(cfg.HTTPClient())
	inventory := client.NewInventoryClient(httpclient.NewBreakerClient(doer, inventoryCB, cfg.InventoryServiceURL, logger))
	pricing := client.NewPricingClient(httpclient.NewBreakerClient(doer, pricingCB, cfg.PricingServiceURL, logger))

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		logger.Warn("redis unreachable, product cache will miss until it recovers", slog.String("error", err.Error()))
	} else {
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
	}
	productCache := cache.NewProductCache(redisClient, cfg.ProductCacheTTL, cfg.ProductStaleTTL)

	// Saga reports are published best effort; the producer trips its own
	// breaker when brokers are down.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := producer.Ping(ctx); err != nil {
		logger.Warn("kafka unreachable, saga reports will be dropped", slog.String("error", err.Error()))
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	coordinator := saga.NewCoordinator(logger,
		saga.WithRecorder(event.NewRecorder(producer, logger)),
		saga.WithCompensationTimeout(cfg.SagaCompensationTimeout),
		saga.WithRecordTimeout(cfg.SagaRecordTimeout),
	)
	payments := payment.NewGuarded(payment.NewMockProvider(payment.MockConfig{
		FailureRate:       cfg.PaymentFailureRate,
		RefundFailureRate: cfg.PaymentRefundFailureRate,
		Latency:           cfg.PaymentLatency,
	}), paymentCB)

	catalog := service.NewCatalogService(inventory, productCache, logger)
	checkout := service.NewCheckoutService(inventory, pricing, payments, coordinator, cfg.SagaStepTimeout, logger)

	sp := proxy.NewServiceProxy([]proxy.Backend{
		{Name: breakerInventory, URL: cfg.InventoryServiceURL, Breaker: inventoryCB},
		{Name: breakerPricing, URL: cfg.PricingServiceURL, Breaker: pricingCB},
	}, proxy.Options{ResponseTimeout: cfg.DownstreamTimeout}, logger)

	// The gateway stays ready while it can degrade; every check is
	// informational.
	healthHandler := health.NewHandler()
	healthHandler.RegisterNonCritical("inventory", dialCheck(cfg.InventoryServiceURL))
	healthHandler.RegisterNonCritical("pricing", dialCheck(cfg.PricingServiceURL))
	healthHandler.RegisterNonCritical("circuits", health.CircuitCheck(registry))
	healthHandler.RegisterNonCritical("redis", productCache.Ping)
	healthHandler.RegisterNonCritical("kafka", producer.Ping)

	runCtx, runCancel := context.WithCancel(context.Background())
	router := handler.NewRouter(runCtx, cfg, handler.Deps{
		Catalog:  catalog,
		Checkout: checkout,
		Breakers: registry,
		Proxy:    sp,
		Health:   healthHandler,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		cancel:         runCancel,
		tracerShutdown: tracerShutdown,
	}, nil
}

// dialCheck reports whether a backend accepts TCP connections.
func dialCheck(rawURL string) health.Checker {
	return func(ctx context.Context) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse service URL: %w", err)
		}
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return fmt.Errorf("downstream unreachable: %w", err)
		}
		_ = conn.Close()
		return nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests and their sagas)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer (flush saga reports)
// 4. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.cancel()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
