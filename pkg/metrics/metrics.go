// Package metrics exposes the Prometheus metrics of the fetcher.
// All metrics are defined in their respective packages (cache, upstream,
// fetcher) to maintain modularity and avoid circular dependencies.
//
// This package provides the HTTP handler and the reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the fetcher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves all registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - stale_cache_hits_total{layer} (Counter): Cache hits by store ("redis", "memory")
//   - stale_cache_misses_total{layer} (Counter): Cache misses by store
//   - stale_cache_written_bytes_total{layer} (Counter): Payload bytes written
//   - stale_cache_errors_total{layer, operation} (Counter): Backend errors by operation
//
// Upstream Metrics (pkg/upstream):
//   - stale_upstream_requests_total{status} (Counter): Upstream requests by HTTP status
//   - stale_upstream_duration_seconds (Histogram): Upstream request duration
//
// Fetch Metrics (pkg/fetcher):
//   - stale_coalesced_waiters_total (Counter): Callers that joined an in-flight fetch
//   - stale_inflight_fetches (Gauge): Foreground upstream fetches in progress
//   - stale_fetch_errors_total{class} (Counter): Foreground failures by error class
//   - stale_refresh_total{result} (Counter): Background refreshes ("success", "failure")
//   - stale_refresh_abandoned_total (Counter): Refresh jobs dropped at the backoff ceiling
//   - stale_refresh_jobs (Gauge): Scheduled refresh jobs
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(stale_cache_hits_total[5m])) /
//   (sum(rate(stale_cache_hits_total[5m])) + sum(rate(stale_cache_misses_total[5m])))
//
//   # Coalescing Ratio (callers served per upstream fetch)
//   rate(stale_coalesced_waiters_total[5m]) / rate(stale_upstream_requests_total[5m])
//
//   # Refresh Failure Rate
//   rate(stale_refresh_total{result="failure"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(stale_upstream_duration_seconds_bucket[5m]))
