package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/hellodd/orderflow/pkg/config"
	"github.com/hellodd/orderflow/pkg/tracing"
)

// Config holds all configuration for the pricing service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PRICING_HTTP_PORT" envDefault:"8002"`

	// Quote cache
	QuoteCacheSize int           `env:"QUOTE_CACHE_SIZE" envDefault:"1024"`
	QuoteCacheTTL  time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"5m"`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}
	cfg.Tracing.ServiceName = "pricing"
	cfg.Tracing.Environment = cfg.Environment
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.QuoteCacheSize < 1 {
		return fmt.Errorf("QUOTE_CACHE_SIZE must be >= 1, got %d", c.QuoteCacheSize)
	}
	if c.QuoteCacheTTL <= 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must be > 0, got %s", c.QuoteCacheTTL)
	}
	return c.Tracing.Validate()
}
