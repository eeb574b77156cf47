package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// ExitCondition decides when a held position should be unwound.
// Evaluated on every tick while the status is ENTERED.
type ExitCondition interface {
	ShouldExit(entry *types.DailyCacheEntry, now time.Time, price decimal.Decimal) bool
	Name() string
}

// TimeBoundary exits at or after a fixed hour of day, the session
// close liquidation.
type TimeBoundary struct {
	Hour     int
	Location *time.Location
}

// NewTimeBoundary creates a time-boundary exit. A nil location means
// UTC.
func NewTimeBoundary(hour int, loc *time.Location) *TimeBoundary {
	if loc == nil {
		loc = time.UTC
	}
	return &TimeBoundary{Hour: hour, Location: loc}
}

// ShouldExit returns true once the local hour reaches the boundary.
func (t *TimeBoundary) ShouldExit(entry *types.DailyCacheEntry, now time.Time, price decimal.Decimal) bool {
	return now.In(t.Location).Hour() >= t.Hour
}

// Name identifies the condition.
func (t *TimeBoundary) Name() string {
	return "time_boundary"
}

// StopLoss exits when the price falls a configured ratio below the
// entry price.
type StopLoss struct {
	Ratio decimal.Decimal
}

// NewStopLoss creates a stop-loss exit, e.g. ratio 0.03 exits on a 3%
// drop from entry.
func NewStopLoss(ratio decimal.Decimal) *StopLoss {
	return &StopLoss{Ratio: ratio}
}

// ShouldExit returns true when price <= entry * (1 - ratio).
func (s *StopLoss) ShouldExit(entry *types.DailyCacheEntry, now time.Time, price decimal.Decimal) bool {
	if !entry.EntryPrice.IsPositive() {
		return false
	}
	floor := entry.EntryPrice.Mul(decimal.NewFromInt(1).Sub(s.Ratio))
	return price.LessThanOrEqual(floor)
}

// Name identifies the condition.
func (s *StopLoss) Name() string {
	return "stop_loss"
}

// AnyOf combines conditions; the position exits when any one fires.
type AnyOf struct {
	conditions []ExitCondition
}

// NewAnyOf combines exit conditions.
func NewAnyOf(conditions ...ExitCondition) *AnyOf {
	return &AnyOf{conditions: conditions}
}

// ShouldExit returns true when any sub-condition fires.
func (a *AnyOf) ShouldExit(entry *types.DailyCacheEntry, now time.Time, price decimal.Decimal) bool {
	for _, c := range a.conditions {
		if c.ShouldExit(entry, now, price) {
			return true
		}
	}
	return false
}

// Name identifies the composite.
func (a *AnyOf) Name() string {
	name := "any_of("
	for i, c := range a.conditions {
		if i > 0 {
			name += ","
		}
		name += c.Name()
	}
	return name + ")"
}
