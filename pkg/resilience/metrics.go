package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the resilience layer.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailer_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mailer_circuit_breaker_state",
		Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	circuitBreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_circuit_breaker_trips_total",
		Help: "Total number of transitions into the open state",
	}, []string{"name"})

	circuitBreakerRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_circuit_breaker_rejected_total",
		Help: "Total number of calls rejected without invoking the operation",
	}, []string{"name"})

	rateLimiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mailer_rate_limiter_wait_seconds",
		Help:    "Time spent waiting for a rate limiter token",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	requestQueueActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailer_request_queue_active",
		Help: "Number of requests currently admitted by the request queue",
	})

	requestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mailer_request_queue_depth",
		Help: "Number of requests waiting for admission",
	})
)
