package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/hellodd/orderflow/pkg/config"
	"github.com/hellodd/orderflow/pkg/database"
	"github.com/hellodd/orderflow/pkg/httpclient"
	"github.com/hellodd/orderflow/pkg/tracing"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds all configuration for the API gateway service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"GATEWAY_HTTP_PORT" envDefault:"8000"`

	// Downstream services
	InventoryServiceURL string        `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8001"`
	PricingServiceURL   string        `env:"PRICING_SERVICE_URL" envDefault:"http://localhost:8002"`
	DownstreamTimeout   time.Duration `env:"DOWNSTREAM_TIMEOUT" envDefault:"5s"`
	DownstreamRetries   int           `env:"DOWNSTREAM_MAX_RETRIES" envDefault:"2"`

	// Redis product cache
	RedisHost       string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort       int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB         int           `env:"REDIS_DB" envDefault:"0"`
	ProductCacheTTL time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"300s"`
	ProductStaleTTL time.Duration `env:"PRODUCT_STALE_TTL" envDefault:"24h"`

	// Kafka saga reports
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT authentication on order routes
	AuthRequired bool   `env:"AUTH_REQUIRED" envDefault:"false"`
	JWTSecret    string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTIssuer    string `env:"JWT_ISSUER" envDefault:""`

	// Metrics endpoint access
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128" envSeparator:","`

	// Rate limiting
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"200"`

	// Mock payment provider
	PaymentFailureRate       float64       `env:"PAYMENT_FAILURE_RATE" envDefault:"0"`
	PaymentRefundFailureRate float64       `env:"PAYMENT_REFUND_FAILURE_RATE" envDefault:"0"`
	PaymentLatency           time.Duration `env:"PAYMENT_LATENCY" envDefault:"50ms"`

	// Checkout saga
	SagaStepTimeout         time.Duration `env:"SAGA_STEP_TIMEOUT" envDefault:"5s"`
	SagaCompensationTimeout time.Duration `env:"SAGA_COMPENSATION_TIMEOUT" envDefault:"10s"`
	SagaRecordTimeout       time.Duration `env:"SAGA_RECORD_TIMEOUT" envDefault:"5s"`

	Breaker pkgconfig.Breaker
	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	cfg.Tracing.ServiceName = "gateway"
	cfg.Tracing.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	for name, raw := range map[string]string{
		"INVENTORY_SERVICE_URL": c.InventoryServiceURL,
		"PRICING_SERVICE_URL":   c.PricingServiceURL,
	} {
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}
	if c.DownstreamTimeout <= 0 {
		return fmt.Errorf("DOWNSTREAM_TIMEOUT must be > 0, got %s", c.DownstreamTimeout)
	}
	if c.DownstreamRetries < 0 {
		return fmt.Errorf("DOWNSTREAM_MAX_RETRIES must be >= 0, got %d", c.DownstreamRetries)
	}
	if c.ProductCacheTTL <= 0 || c.ProductStaleTTL < c.ProductCacheTTL {
		return fmt.Errorf("PRODUCT_STALE_TTL (%s) must be >= PRODUCT_CACHE_TTL (%s) > 0", c.ProductStaleTTL, c.ProductCacheTTL)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.PaymentFailureRate < 0 || c.PaymentFailureRate > 1 {
		return fmt.Errorf("PAYMENT_FAILURE_RATE must be within [0, 1], got %v", c.PaymentFailureRate)
	}
	if c.PaymentRefundFailureRate < 0 || c.PaymentRefundFailureRate > 1 {
		return fmt.Errorf("PAYMENT_REFUND_FAILURE_RATE must be within [0, 1], got %v", c.PaymentRefundFailureRate)
	}
	if c.AuthRequired && c.Environment != "development" && c.JWTSecret == defaultJWTSecret {
		return fmt.Errorf("JWT_SECRET must be changed from default value in %s environment", c.Environment)
	}
	if err := c.Breaker.Validate(); err != nil {
		return err
	}
	return c.Tracing.Validate()
}

// Redis returns the connection settings for the product cache.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// HTTPClient returns the settings for calls to inventory and pricing.
func (c *Config) HTTPClient() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = c.DownstreamTimeout
	hc.MaxRetries = c.DownstreamRetries
	return hc
}
