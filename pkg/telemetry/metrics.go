// Package telemetry exposes Prometheus instrumentation for pipeline runs
// and optimization studies.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names
const (
	MetricRunsTotal        = "backtest_runs_total"
	MetricRunFailuresTotal = "backtest_run_failures_total"
	MetricRunDuration      = "backtest_run_duration_seconds"
	MetricTradesTotal      = "backtest_trades_total"
	MetricAssignments      = "backtest_optimizer_assignments"
)

var (
	// RunsTotal counts completed pipeline runs
	RunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricRunsTotal,
		Help: "Completed backtest pipeline runs",
	})

	// RunFailuresTotal counts pipeline runs that ended in an error
	RunFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricRunFailuresTotal,
		Help: "Backtest pipeline runs that failed",
	})

	// RunDuration observes end-to-end pipeline run latency
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricRunDuration,
		Help:    "End-to-end duration of one backtest pipeline run",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
	})

	// TradesTotal counts trades emitted across all runs
	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricTradesTotal,
		Help: "Trades emitted by the matching engine across all runs",
	})

	// Assignments tracks optimizer grid progress by state
	Assignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricAssignments,
		Help: "Optimizer assignments by terminal state",
	}, []string{"state"})
)
