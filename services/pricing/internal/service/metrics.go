package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quoteCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_quote_cache_lookups_total",
			Help: "Total number of quote cache lookups by result",
		},
		[]string{"result"},
	)

	quotesCalculated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricing_quotes_calculated_total",
			Help: "Total number of quotes computed from the rule set",
		},
	)

	discountCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricing_discount_cents_total",
			Help: "Total discount granted in cents by rule code",
		},
		[]string{"rule"},
	)
)
