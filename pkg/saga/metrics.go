package saga

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sagaRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_runs_total",
			Help: "Total number of saga runs by terminal status",
		},
		[]string{"saga", "status"},
	)

	sagasInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "saga_in_flight",
			Help: "Number of sagas currently running or compensating",
		},
		[]string{"saga", "status"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Duration of saga forward steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"saga", "step", "outcome"},
	)

	compensationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_compensation_failures_total",
			Help: "Total number of compensating actions that failed",
		},
		[]string{"saga", "step"},
	)
)
