// Package metrics provides the centralized Prometheus registry for spex.
// All metrics are defined in their respective packages (spex, pagination)
// to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the default Prometheus registry used by spex.
	// All metrics are automatically registered via promauto in their respective packages.
	Registry = prometheus.DefaultRegisterer

	// Gatherer collects the metrics registered through Registry.
	Gatherer = prometheus.DefaultGatherer
)

// Handler returns the HTTP handler exposing every metric in Gatherer. Its own
// request counters are registered with Registry.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(Registry, promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}))
}

// Metrics Documentation
//
// Engine Metrics (pkg/spex):
//   - spex_runs_total{engine, outcome} (Counter): Runs by engine (batch, page, sequence) and outcome (success, failure)
//   - spex_run_duration_seconds{engine} (Histogram): Run duration by engine
//   - spex_steps_total{engine} (Counter): Source calls (page, sequence) or settled items (batch)
//   - spex_failures_total{engine, stage} (Counter): Failed stages (source, dest, item, callback)
//
// Pagination Metrics (pkg/pagination):
//   - spex_pagination_pages_total{outcome} (Counter): Pages fetched by outcome (success, failure)
//
// Redis Metrics (pkg/redisiter):
//   - spex_redis_errors_total{operation} (Counter): Failed list operations (lrange, lpop, rpush)
//
// Example Prometheus Queries:
//
//   # Failure Rate per Engine
//   sum by (engine) (rate(spex_runs_total{outcome="failure"}[5m])) /
//   sum by (engine) (rate(spex_runs_total[5m]))
//
//   # Failing Stage Breakdown
//   sum by (engine, stage) (rate(spex_failures_total[5m]))
//
//   # P95 Run Duration
//   histogram_quantile(0.95, rate(spex_run_duration_seconds_bucket[5m]))
//
//   # Steps per Second
//   sum by (engine) (rate(spex_steps_total[1m]))
