package pagination

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for pagination.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_pagination_pages_fetched_total",
		Help: "Total number of pages fetched by endpoint and strategy",
	}, []string{"endpoint", "strategy"})

	pageFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailer_pagination_page_fetch_duration_seconds",
		Help:    "Duration of single page fetches including retries",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	pageRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_pagination_page_retries_total",
		Help: "Total number of page fetch retries by endpoint",
	}, []string{"endpoint"})

	itemsYieldedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_pagination_items_total",
		Help: "Total number of items delivered to consumers by endpoint",
	}, []string{"endpoint"})

	failedSourcesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailer_pagination_failed_sources_total",
		Help: "Total number of sources dropped from a concurrent merge after an error",
	}, []string{"endpoint"})
)
