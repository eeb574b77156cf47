// Package engine composes the strategy, cache, allocation, and
// execution components into the per-instrument run cycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/alerting"
	"breakout-bot/internal/allocation"
	"breakout-bot/internal/cache"
	"breakout-bot/internal/exchange"
	"breakout-bot/internal/execution"
	"breakout-bot/internal/metrics"
	"breakout-bot/internal/strategy"
	"breakout-bot/internal/types"
)

// Config holds engine configuration.
type Config struct {
	// Currency is the cash currency used for balances and buys.
	Currency string

	// RollHour is the local hour at which the trading day rolls.
	RollHour int

	// Location is the timezone trading dates are derived in.
	Location *time.Location

	// MaxCommitRetries bounds re-read-and-recommit loops after a
	// concurrent modification.
	MaxCommitRetries int
}

// DefaultConfig returns KRW accounting on UTC midnight rolls.
func DefaultConfig() Config {
	return Config{
		Currency:         "KRW",
		RollHour:         0,
		Location:         time.UTC,
		MaxCommitRetries: 3,
	}
}

// Engine is the strategy context: it runs one evaluation-and-action
// pass per tick and reconciles confirmed order outcomes into the
// cache. Ticks for different instruments may run concurrently;
// per-instrument ordering is enforced by the cache's CAS commits.
type Engine struct {
	cfg         Config
	instruments []types.Instrument
	known       map[string]bool
	locks       map[string]*sync.Mutex
	registry    *exchange.Registry
	cache       *cache.Manager
	alloc       *allocation.Manager
	executor    *execution.Executor
	strat       *strategy.VolatilityBreakout
	clock       Clock
	alerter     alerting.Alerter
	recorder    *metrics.Recorder
	logger      *slog.Logger
}

// NewEngine creates the strategy context.
func NewEngine(
	cfg Config,
	instruments []types.Instrument,
	registry *exchange.Registry,
	cacheMgr *cache.Manager,
	alloc *allocation.Manager,
	executor *execution.Executor,
	strat *strategy.VolatilityBreakout,
	clock Clock,
	alerter alerting.Alerter,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxCommitRetries <= 0 {
		cfg.MaxCommitRetries = DefaultConfig().MaxCommitRetries
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}

	known := make(map[string]bool, len(instruments))
	locks := make(map[string]*sync.Mutex, len(instruments))
	for _, inst := range instruments {
		known[inst.Key()] = true
		locks[inst.Key()] = &sync.Mutex{}
	}

	return &Engine{
		cfg:         cfg,
		instruments: instruments,
		known:       known,
		locks:       locks,
		registry:    registry,
		cache:       cacheMgr,
		alloc:       alloc,
		executor:    executor,
		strat:       strat,
		clock:       clock,
		alerter:     alerter,
		recorder:    metrics.NewRecorder(),
		logger:      logger,
	}
}

// Instruments returns the configured instrument set.
func (e *Engine) Instruments() []types.Instrument {
	return e.instruments
}

// RunCycle runs one evaluation-and-action pass for an instrument.
// Safe to call repeatedly within the same tick window: re-ticks with
// unchanged market data are no-ops. Concurrent cycles for the same
// instrument serialize, so a breakout tick submits at most one entry
// order; the second cycle re-reads the committed state and holds.
func (e *Engine) RunCycle(ctx context.Context, inst types.Instrument, now time.Time) (types.CycleResult, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveCycle()
	defer e.recorder.RecordHeartbeat()

	if !e.known[inst.Key()] {
		return types.CycleResult{}, fmt.Errorf("%w: %s", types.ErrUnknownInstrument, inst)
	}
	lock := e.locks[inst.Key()]
	lock.Lock()
	defer lock.Unlock()
	if now.IsZero() {
		now = e.clock.Now()
	}
	date := TradingDateAt(now, e.cfg.RollHour, e.cfg.Location)

	entry, err := e.cache.GetOrCreate(ctx, inst, date)
	if err != nil {
		e.recorder.RecordError("cache_load")
		return types.CycleResult{}, fmt.Errorf("run cycle %s: %w", inst, err)
	}

	result := types.CycleResult{
		Instrument:  inst,
		TradingDate: date,
		Action:      types.ActionNone,
		Status:      entry.Status,
	}

	if entry.Status.IsTerminal() {
		result.Reason = "day complete"
		e.recorder.RecordCycle(inst.Key(), result.Action.String())
		return result, nil
	}

	adapter, err := e.registry.ForInstrument(inst)
	if err != nil {
		return types.CycleResult{}, fmt.Errorf("run cycle %s: %w", inst, err)
	}

	price, err := adapter.LatestPrice(ctx, inst)
	if err != nil {
		e.recorder.RecordError("price_fetch")
		return types.CycleResult{}, fmt.Errorf("run cycle %s: %w", inst, err)
	}

	budget, hasBudget := e.entryBudget(ctx, adapter, inst, entry, date)

	decision := e.strat.Decide(entry, now, price, hasBudget)
	result.Action = decision.Action
	result.Reason = decision.Reason

	switch decision.Action {
	case types.ActionEnter:
		entry, result.Execution, err = e.enter(ctx, inst, date, budget)
	case types.ActionExit:
		entry, result.Execution, err = e.exit(ctx, inst, date, entry.RemainingVolume, "exit condition")
	}
	if err != nil {
		return result, err
	}

	result.Status = entry.Status
	e.recorder.RecordCycle(inst.Key(), result.Action.String())
	e.recorder.RecordPositionOpen(inst.Key(), entry.HasPosition())
	return result, nil
}

// ForceExit is the manual override: it liquidates an open or closing
// position immediately, ignoring the exit condition. Fails with
// types.ErrNoPosition, mutating nothing, when the instrument holds no
// position today.
func (e *Engine) ForceExit(ctx context.Context, inst types.Instrument) (types.ExecutionResult, error) {
	if !e.known[inst.Key()] {
		return types.ExecutionResult{}, fmt.Errorf("%w: %s", types.ErrUnknownInstrument, inst)
	}
	lock := e.locks[inst.Key()]
	lock.Lock()
	defer lock.Unlock()

	now := e.clock.Now()
	date := TradingDateAt(now, e.cfg.RollHour, e.cfg.Location)

	entry, err := e.cache.Get(ctx, inst, date)
	if err != nil {
		if errors.Is(err, types.ErrEntryNotFound) {
			return types.ExecutionResult{}, fmt.Errorf("force exit %s: %w", inst, types.ErrNoPosition)
		}
		return types.ExecutionResult{}, fmt.Errorf("force exit %s: %w", inst, err)
	}
	if !entry.HasPosition() {
		return types.ExecutionResult{}, fmt.Errorf("force exit %s (%s): %w", inst, entry.Status, types.ErrNoPosition)
	}

	e.logger.Info("force exit requested",
		"instrument", inst.Key(),
		"status", entry.Status,
		"remaining_volume", entry.RemainingVolume,
	)

	_, exec, err := e.exit(ctx, inst, date, entry.RemainingVolume, "force exit")
	if err != nil {
		return types.ExecutionResult{}, err
	}
	return *exec, nil
}

// enter submits the BUY and reconciles the confirmed fill into the
// cache. Unfilled or failed orders leave the entry at IDLE so the next
// tick retries the same decision.
func (e *Engine) enter(ctx context.Context, inst types.Instrument, date types.TradingDate, budget decimal.Decimal) (*types.DailyCacheEntry, *types.ExecutionResult, error) {
	timer := metrics.NewTimer()
	exec := e.executor.Submit(ctx, types.OrderRequest{
		Instrument: inst,
		Side:       types.SideBuy,
		Size:       budget,
		OrderType:  types.OrderTypeMarket,
	})
	timer.ObserveOrder()
	e.recorder.RecordOrder(inst.Key(), exec.Side.String(), exec.Outcome.String())

	if !exec.Filled() {
		e.alert(ctx, alerting.SeverityWarning, "Entry order did not fill",
			"instrument", inst.Key(),
			"outcome", exec.Outcome.String(),
			"error_kind", exec.ErrorKind.String(),
			"message", exec.Message,
		)
		entry, err := e.cache.GetOrCreate(ctx, inst, date)
		return entry, &exec, err
	}

	entry, err := e.commitWith(ctx, inst, date, func(en *types.DailyCacheEntry) {
		strategy.ApplyEntry(en, exec)
	})
	if err != nil {
		return nil, &exec, fmt.Errorf("commit entry fill %s: %w", inst, err)
	}

	e.alert(ctx, alerting.SeverityInfo, "Position entered",
		"instrument", inst.Key(),
		"volume", exec.ExecutedVolume.String(),
		"avg_price", exec.AveragePrice.String(),
		"outcome", exec.Outcome.String(),
	)
	return entry, &exec, nil
}

// exit submits the SELL and reconciles the confirmed fill. Partial
// fills leave the entry at EXITING with the remainder reduced; a fully
// unwound position closes the day.
func (e *Engine) exit(ctx context.Context, inst types.Instrument, date types.TradingDate, volume decimal.Decimal, cause string) (*types.DailyCacheEntry, *types.ExecutionResult, error) {
	timer := metrics.NewTimer()
	exec := e.executor.Submit(ctx, types.OrderRequest{
		Instrument: inst,
		Side:       types.SideSell,
		Size:       volume,
		OrderType:  types.OrderTypeMarket,
	})
	timer.ObserveOrder()
	e.recorder.RecordOrder(inst.Key(), exec.Side.String(), exec.Outcome.String())

	if !exec.Filled() {
		e.alert(ctx, alerting.SeverityWarning, "Exit order did not fill",
			"instrument", inst.Key(),
			"cause", cause,
			"outcome", exec.Outcome.String(),
			"error_kind", exec.ErrorKind.String(),
			"message", exec.Message,
		)
		entry, err := e.cache.GetOrCreate(ctx, inst, date)
		return entry, &exec, err
	}

	entry, err := e.commitWith(ctx, inst, date, func(en *types.DailyCacheEntry) {
		strategy.ApplySell(en, exec)
	})
	if err != nil {
		return nil, &exec, fmt.Errorf("commit exit fill %s: %w", inst, err)
	}

	if strategy.ReadyToClose(entry) {
		entry, err = e.commitWith(ctx, inst, date, func(en *types.DailyCacheEntry) {
			en.Status = types.StatusClosed
		})
		if err != nil {
			return nil, &exec, fmt.Errorf("close position %s: %w", inst, err)
		}
	}

	e.alert(ctx, alerting.SeverityInfo, "Position exit executed",
		"instrument", inst.Key(),
		"cause", cause,
		"volume", exec.ExecutedVolume.String(),
		"remaining", entry.RemainingVolume.String(),
		"status", entry.Status.String(),
	)
	return entry, &exec, nil
}

// commitWith re-reads the entry, applies the mutation, and commits via
// CAS. A concurrent modification triggers a fresh re-read and
// re-application, never a blind retry with stale data.
func (e *Engine) commitWith(ctx context.Context, inst types.Instrument, date types.TradingDate, mutate func(*types.DailyCacheEntry)) (*types.DailyCacheEntry, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxCommitRetries; attempt++ {
		entry, err := e.cache.GetOrCreate(ctx, inst, date)
		if err != nil {
			return nil, err
		}

		mutate(entry)

		if _, err := e.cache.Commit(ctx, entry, entry.Version); err != nil {
			if errors.Is(err, types.ErrConcurrentModification) {
				e.recorder.RecordCASConflict(inst.Key())
				e.logger.Warn("cache commit lost race, re-evaluating",
					"instrument", inst.Key(),
					"attempt", attempt+1,
				)
				lastErr = err
				continue
			}
			return nil, err
		}
		return entry, nil
	}
	return nil, lastErr
}

// entryBudget computes this tick's allocation budget for an IDLE
// instrument. The plan is recomputed on every tick because the balance
// changes between ticks.
func (e *Engine) entryBudget(ctx context.Context, adapter exchange.Adapter, inst types.Instrument, entry *types.DailyCacheEntry, date types.TradingDate) (decimal.Decimal, bool) {
	if entry.Status != types.StatusIdle {
		return decimal.Zero, false
	}

	balance, err := adapter.AvailableCash(ctx, e.cfg.Currency)
	if err != nil {
		e.recorder.RecordError("balance_fetch")
		e.logger.Warn("balance fetch failed, skipping entry this tick",
			"instrument", inst.Key(),
			"err", err,
		)
		return decimal.Zero, false
	}

	eligible := e.eligibleForEntry(ctx, inst.Exchange, date)
	plan := e.alloc.Allocate(balance, eligible)

	budget, ok := plan.Budget(inst)
	if !ok || !budget.IsPositive() {
		return decimal.Zero, false
	}
	e.recorder.RecordAllocation(inst.Key(), budget)
	return budget, true
}

// eligibleForEntry lists the configured instruments on one exchange
// still IDLE today; only those receive fresh allocation.
func (e *Engine) eligibleForEntry(ctx context.Context, exchangeName string, date types.TradingDate) []types.Instrument {
	var eligible []types.Instrument
	for _, inst := range e.instruments {
		if inst.Exchange != exchangeName {
			continue
		}
		entry, err := e.cache.GetOrCreate(ctx, inst, date)
		if err != nil {
			e.logger.Warn("skipping instrument in allocation",
				"instrument", inst.Key(),
				"err", err,
			)
			continue
		}
		if entry.Status == types.StatusIdle {
			eligible = append(eligible, inst)
		}
	}
	return eligible
}

// alert notifies through the configured alerter, if any.
func (e *Engine) alert(ctx context.Context, severity alerting.Severity, message string, fields ...any) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Alert(ctx, severity, message, fields...); err != nil {
		e.logger.Warn("failed to send alert", "err", err)
	}
}
