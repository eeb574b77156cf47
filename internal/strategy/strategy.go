// Package strategy implements the volatility breakout decision state
// machine.
//
// The state machine is pure: it inspects a cache entry and market data
// and returns a decision. It performs no blocking work and never
// mutates the entry; applying outcomes is the engine's job.
package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// Decision is the outcome of evaluating one tick.
type Decision struct {
	Action types.Action
	Reason string
}

// VolatilityBreakout decides entry and exit actions for one
// instrument-day based on the precomputed breakout target.
//
// Per-day lifecycle: IDLE -> ENTERED -> EXITING -> CLOSED.
type VolatilityBreakout struct {
	exit ExitCondition
}

// New creates the strategy with the given exit condition.
func New(exit ExitCondition) *VolatilityBreakout {
	return &VolatilityBreakout{exit: exit}
}

// Name returns the strategy identifier.
func (s *VolatilityBreakout) Name() string {
	return "volatility_breakout"
}

// Decide evaluates one tick. Repeated ticks with no new information are
// idempotent: when the entry already reflects the action the strategy
// would take, ActionNone is returned and no order is issued.
func (s *VolatilityBreakout) Decide(entry *types.DailyCacheEntry, now time.Time, price decimal.Decimal, hasBudget bool) Decision {
	switch entry.Status {
	case types.StatusClosed:
		return Decision{Action: types.ActionNone, Reason: "day complete"}

	case types.StatusExiting:
		if entry.RemainingVolume.IsPositive() {
			return Decision{Action: types.ActionExit, Reason: "re-attempt remaining exit volume"}
		}
		return Decision{Action: types.ActionNone, Reason: "exit already filled"}

	case types.StatusEntered:
		if s.exit != nil && s.exit.ShouldExit(entry, now, price) {
			return Decision{Action: types.ActionExit, Reason: "exit condition met: " + s.exit.Name()}
		}
		return Decision{Action: types.ActionNone, Reason: "holding position"}

	case types.StatusIdle:
		if !price.GreaterThanOrEqual(entry.TargetPrice) {
			return Decision{Action: types.ActionNone, Reason: "price below target"}
		}
		if !hasBudget {
			return Decision{Action: types.ActionNone, Reason: "no allocation budget"}
		}
		return Decision{Action: types.ActionEnter, Reason: "price broke above target"}

	default:
		return Decision{Action: types.ActionNone, Reason: "unknown status"}
	}
}

// ApplyEntry folds a BUY execution result into the entry. Failed and
// unfilled orders leave the status unchanged so the next tick retries
// the same decision. Entries that already left IDLE are untouched, so
// re-applying after a lost commit race cannot double-count a fill.
func ApplyEntry(entry *types.DailyCacheEntry, result types.ExecutionResult) {
	if !result.Filled() {
		return
	}
	if entry.Status != types.StatusIdle {
		return
	}
	entry.Status = types.StatusEntered
	entry.EntryPrice = result.AveragePrice
	entry.EntryVolume = result.ExecutedVolume
	// The executed volume is what remains to be unwound at exit.
	entry.RemainingVolume = result.ExecutedVolume
}

// ApplySell folds a SELL execution result into the entry. Partial
// fills keep the status at EXITING with the remaining volume reduced;
// a fully unwound position closes the day.
func ApplySell(entry *types.DailyCacheEntry, result types.ExecutionResult) {
	if !result.Filled() {
		return
	}
	if !entry.HasPosition() {
		return
	}
	entry.Status = types.StatusExiting
	entry.RemainingVolume = entry.RemainingVolume.Sub(result.ExecutedVolume)
	if entry.RemainingVolume.LessThanOrEqual(decimal.Zero) {
		entry.RemainingVolume = decimal.Zero
	}
}

// ReadyToClose reports whether an EXITING entry has fully unwound.
func ReadyToClose(entry *types.DailyCacheEntry) bool {
	return entry.Status == types.StatusExiting && entry.RemainingVolume.IsZero()
}
