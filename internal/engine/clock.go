package engine

import (
	"time"

	"breakout-bot/internal/types"
)

// Clock supplies the current time. Injectable so trading-date and
// exit-boundary logic is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// FixedClock always returns the same instant. For tests.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return c.T
}

// TradingDateAt maps an instant to its trading date. The day rolls at
// rollHour in the given location: instants before the roll belong to
// the previous trading day.
func TradingDateAt(t time.Time, rollHour int, loc *time.Location) types.TradingDate {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	if local.Hour() < rollHour {
		local = local.AddDate(0, 0, -1)
	}
	return types.NewTradingDate(local)
}
