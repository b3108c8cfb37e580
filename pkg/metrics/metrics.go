// Package metrics exposes the Prometheus metrics of the mailer client.
// Metrics are defined and registered via promauto in the packages that
// record them (client, resilience, ratelimit, cache, pagination); this
// package serves them and keeps a catalogue for documentation and tooling.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the mailer client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metric describes one exported metric.
type Metric struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Labels  string `json:"labels,omitempty"`
	Package string `json:"package"`
}

// Catalogue lists every metric the client exports.
var Catalogue = []Metric{
	{"mailer_requests_total", "counter", "endpoint,status", "client"},
	{"mailer_request_duration_seconds", "histogram", "endpoint", "client"},
	{"mailer_errors_total", "counter", "kind", "client"},

	{"mailer_retries_total", "counter", "error_kind", "resilience"},
	{"mailer_retry_backoff_seconds", "histogram", "error_kind", "resilience"},
	{"mailer_retry_exhausted_total", "counter", "error_kind", "resilience"},
	{"mailer_circuit_breaker_state", "gauge", "name", "resilience"},
	{"mailer_circuit_breaker_trips_total", "counter", "name", "resilience"},
	{"mailer_circuit_breaker_rejected_total", "counter", "name", "resilience"},
	{"mailer_rate_limiter_wait_seconds", "histogram", "", "resilience"},
	{"mailer_request_queue_active", "gauge", "", "resilience"},
	{"mailer_request_queue_depth", "gauge", "", "resilience"},

	{"mailer_server_rate_limit_remaining", "gauge", "", "ratelimit"},
	{"mailer_server_rate_limit_blocks_total", "counter", "", "ratelimit"},
	{"mailer_server_rate_limit_throttles_total", "counter", "", "ratelimit"},

	{"mailer_cache_hits_total", "counter", "", "cache"},
	{"mailer_cache_misses_total", "counter", "", "cache"},
	{"mailer_cache_stored_bytes_total", "counter", "", "cache"},
	{"mailer_cache_revalidations_total", "counter", "", "cache"},
	{"mailer_cache_invalidations_total", "counter", "", "cache"},
	{"mailer_cache_errors_total", "counter", "operation", "cache"},

	{"mailer_pagination_pages_fetched_total", "counter", "endpoint,strategy", "pagination"},
	{"mailer_pagination_page_fetch_duration_seconds", "histogram", "endpoint", "pagination"},
	{"mailer_pagination_page_retries_total", "counter", "endpoint", "pagination"},
	{"mailer_pagination_items_total", "counter", "endpoint", "pagination"},
	{"mailer_pagination_failed_sources_total", "counter", "endpoint", "pagination"},
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(mailer_cache_hits_total[5m])) /
//   (sum(rate(mailer_cache_hits_total[5m])) + sum(rate(mailer_cache_misses_total[5m])))
//
//   # Server quota running low
//   mailer_server_rate_limit_remaining < 10
//
//   # Open circuits
//   mailer_circuit_breaker_state == 1
//
//   # Request Error Rate by kind
//   sum by (kind) (rate(mailer_errors_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(mailer_request_duration_seconds_bucket[5m]))
