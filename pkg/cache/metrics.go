package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts fresh entries served from Redis.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses counts lookups without a fresh entry.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheStoredBytes counts bytes written to the cache.
	CacheStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_cache_stored_bytes_total",
			Help: "Total number of bytes written to the response cache",
		},
	)

	// Revalidations counts entries extended by a 304 Not Modified response.
	Revalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_cache_revalidations_total",
			Help: "Total number of cache entries revalidated with 304 Not Modified",
		},
	)

	// Invalidations counts entries removed after writes to their endpoint.
	Invalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailer_cache_invalidations_total",
			Help: "Total number of cache entries removed by endpoint invalidation",
		},
	)

	// CacheErrors counts failed cache operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailer_cache_errors_total",
			Help: "Total number of response cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
