// Package allocation computes per-instrument capital budgets from the
// available balance.
package allocation

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// allocPrecision is the decimal precision budgets are floored to so
// the sum of allocations never exceeds the reserved balance.
const allocPrecision = 4

// Config holds allocation settings.
type Config struct {
	// MarginReserveRatio is the fraction of the balance withheld from
	// allocation, e.g. 0.05 keeps 5% unallocated.
	MarginReserveRatio decimal.Decimal

	// Weights optionally maps instrument keys to relative weights.
	// Instruments without a weight share evenly in the unweighted
	// remainder; an empty map means an even split.
	Weights map[string]decimal.Decimal
}

// DefaultConfig returns an even split with a 5% reserve.
func DefaultConfig() Config {
	return Config{MarginReserveRatio: decimal.RequireFromString("0.05")}
}

// Plan is the result of one allocation pass. Plans are request-scoped:
// recomputed on every tick and never cached across ticks.
type Plan struct {
	TotalBalance  decimal.Decimal
	MarginReserve decimal.Decimal
	PerInstrument map[string]decimal.Decimal
}

// Budget returns the budget assigned to an instrument.
func (p Plan) Budget(inst types.Instrument) (decimal.Decimal, bool) {
	b, ok := p.PerInstrument[inst.Key()]
	return b, ok
}

// Manager computes allocation plans.
type Manager struct {
	cfg    Config
	logger *slog.Logger
}

// NewManager creates an allocation manager.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Allocate splits totalBalance * (1 - margin_reserve_ratio) across the
// eligible instruments, evenly or by configured weights. Budgets are
// floored so their sum never exceeds the reserved balance. An empty
// eligible set yields an empty plan.
func (m *Manager) Allocate(totalBalance decimal.Decimal, eligible []types.Instrument) Plan {
	reserve := totalBalance.Mul(m.cfg.MarginReserveRatio)
	plan := Plan{
		TotalBalance:  totalBalance,
		MarginReserve: reserve,
		PerInstrument: make(map[string]decimal.Decimal, len(eligible)),
	}

	if len(eligible) == 0 || !totalBalance.IsPositive() {
		return plan
	}

	allocatable := totalBalance.Sub(reserve)

	totalWeight := decimal.Zero
	weights := make([]decimal.Decimal, len(eligible))
	for i, inst := range eligible {
		w, ok := m.cfg.Weights[inst.Key()]
		if !ok || !w.IsPositive() {
			w = decimal.NewFromInt(1)
		}
		weights[i] = w
		totalWeight = totalWeight.Add(w)
	}

	for i, inst := range eligible {
		budget := allocatable.Mul(weights[i]).Div(totalWeight).RoundFloor(allocPrecision)
		plan.PerInstrument[inst.Key()] = budget
	}

	m.logger.Debug("allocation computed",
		"total_balance", totalBalance,
		"reserve", reserve,
		"instruments", len(eligible),
	)
	return plan
}
