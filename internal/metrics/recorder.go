package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recorder provides methods for recording engine metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordCycle records one evaluation cycle.
func (r *Recorder) RecordCycle(instrument, action string) {
	CyclesTotal.WithLabelValues(instrument, action).Inc()
}

// RecordOrder records a submitted order and its outcome.
func (r *Recorder) RecordOrder(instrument, side, outcome string) {
	OrdersTotal.WithLabelValues(instrument, side, outcome).Inc()
}

// RecordCASConflict records a commit lost to a concurrent writer.
func (r *Recorder) RecordCASConflict(instrument string) {
	CASConflictsTotal.WithLabelValues(instrument).Inc()
}

// RecordPositionOpen records whether a position is held.
func (r *Recorder) RecordPositionOpen(instrument string, open bool) {
	if open {
		PositionsOpen.WithLabelValues(instrument).Set(1)
	} else {
		PositionsOpen.WithLabelValues(instrument).Set(0)
	}
}

// RecordAllocation records the budget assigned to an instrument.
func (r *Recorder) RecordAllocation(instrument string, budget decimal.Decimal) {
	AllocationBudget.WithLabelValues(instrument).Set(budget.InexactFloat64())
}

// RecordHeartbeat records a completed cycle timestamp.
func (r *Recorder) RecordHeartbeat() {
	HeartbeatTimestamp.Set(float64(time.Now().Unix()))
}

// RecordError records an error by type.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveCycle observes the elapsed time as cycle latency.
func (t *Timer) ObserveCycle() {
	CycleLatency.Observe(t.Elapsed().Seconds())
}

// ObserveOrder observes the elapsed time as order latency.
func (t *Timer) ObserveOrder() {
	OrderLatency.Observe(t.Elapsed().Seconds())
}
