// Package metrics exposes Prometheus metrics for the strategy engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "breakout_bot"

// Engine metrics.
var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cycles_total",
		Help:      "Strategy evaluation cycles by instrument and resulting action.",
	}, []string{"instrument", "action"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Submitted orders by instrument, side, and outcome.",
	}, []string{"instrument", "side", "outcome"})

	CASConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cas_conflicts_total",
		Help:      "Cache commits lost to a concurrent writer.",
	}, []string{"instrument"})

	PositionsOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "positions_open",
		Help:      "Whether a position is currently held (1) per instrument.",
	}, []string{"instrument"})

	AllocationBudget = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "allocation_budget",
		Help:      "Capital budget assigned to an instrument on the last tick.",
	}, []string{"instrument"})

	CycleLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cycle_latency_seconds",
		Help:      "Wall-clock duration of one run cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	})

	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "order_latency_seconds",
		Help:      "Wall-clock duration from submission to classified outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_timestamp_seconds",
		Help:      "Unix timestamp of the last completed cycle.",
	})

	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by type.",
	}, []string{"type"})

	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata as constant labels.",
	}, []string{"version", "commit"})
)

// SetBuildInfo records build metadata.
func SetBuildInfo(version, commit string) {
	BuildInfo.WithLabelValues(version, commit).Set(1)
}
