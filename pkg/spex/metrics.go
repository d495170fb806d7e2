package spex

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for engine runs.
var (
	spexRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spex_runs_total",
		Help: "Total number of engine runs by engine and outcome",
	}, []string{"engine", "outcome"})

	spexRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spex_run_duration_seconds",
		Help:    "Engine run duration in seconds by engine",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	}, []string{"engine"})

	spexStepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spex_steps_total",
		Help: "Total number of source calls (page, sequence) or settled items (batch)",
	}, []string{"engine"})

	spexFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spex_failures_total",
		Help: "Total number of failed stages by engine and stage",
	}, []string{"engine", "stage"})
)

// Failure stages used as metric labels.
const (
	stageSource   = "source"
	stageDest     = "dest"
	stageItem     = "item"
	stageCallback = "callback"
)
