package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/hellodd/orderflow/pkg/breaker"
)

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Breaker holds the circuit breaker settings shared by every downstream a
// service protects. Embed it in a service config.
type Breaker struct {
	FailureThreshold  int           `env:"CB_FAILURE_THRESHOLD" envDefault:"5"`
	RecoveryTimeout   time.Duration `env:"CB_RECOVERY_TIMEOUT" envDefault:"30s"`
	HalfOpenSuccesses int           `env:"CB_HALF_OPEN_SUCCESSES" envDefault:"2"`
}

// For returns the breaker configuration for the named downstream.
func (b Breaker) For(name string) breaker.Config {
	return breaker.Config{
		Name:                      name,
		FailureThreshold:          b.FailureThreshold,
		RecoveryTimeout:           b.RecoveryTimeout,
		HalfOpenSuccessesRequired: b.HalfOpenSuccesses,
	}
}

// Validate checks the settings the same way breaker.New will.
func (b Breaker) Validate() error {
	return b.For("config").Validate()
}
