// Package metrics provides the Prometheus registry and scrape handler for the
// bookshelf service. All metrics are defined in their respective packages
// (prefetch, client, cache) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the service.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler returns the scrape handler for the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Prefetch Metrics (pkg/prefetch):
//   - bookshelf_refills_total{category, outcome} (Counter): Refills by outcome (success, empty, failure)
//   - bookshelf_refill_duration_seconds{mode} (Histogram): Warm and extend duration
//   - bookshelf_buffered_records{category} (Gauge): Records currently buffered per category
//   - bookshelf_consumed_records_total{category} (Counter): Records handed out by consume
//   - bookshelf_consume_misses_total (Counter): Consumes against an uncached category
//
// Cache Metrics (pkg/cache):
//   - books_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - books_cache_misses_total (Counter): Cache misses
//   - books_cache_size_bytes{layer="redis"} (Gauge): Current cache size in bytes
//   - books_304_responses_total (Counter): 304 Not Modified responses
//   - books_conditional_requests_total (Counter): Conditional requests sent with If-None-Match
//   - books_cache_errors_total{operation} (Counter): Cache operation errors
//
// Request Metrics (pkg/client):
//   - books_api_requests_total{status} (Counter): Total requests by HTTP status
//   - books_api_request_duration_seconds (Histogram): Request duration
//   - books_api_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - books_api_retries_total{error_class} (Counter): Retry attempts by error class
//   - books_api_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - books_api_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Refill Failure Rate per Category
//   sum by (category) (rate(bookshelf_refills_total{outcome="failure"}[5m]))
//
//   # Exhausted Categories (provider keeps returning empty pages)
//   rate(bookshelf_refills_total{outcome="empty"}[15m]) > 0
//
//   # Cache Hit Rate
//   sum(rate(books_cache_hits_total[5m])) /
//   (sum(rate(books_cache_hits_total[5m])) + sum(rate(books_cache_misses_total[5m])))
//
//   # P95 Warm Latency
//   histogram_quantile(0.95, rate(bookshelf_refill_duration_seconds_bucket{mode="warm"}[5m]))
//
//   # 304 Response Rate
//   rate(books_304_responses_total[5m]) / sum(rate(books_api_requests_total[5m]))
