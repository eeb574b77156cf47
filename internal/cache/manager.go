// Package cache provides the durable per-instrument, per-day state
// store with optimistic concurrency.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// errAlreadyExists is returned by Store.Create when another writer won
// the creation race. The manager resolves it by re-reading.
var errAlreadyExists = errors.New("cache entry already exists")

// Store is the versioned record store backing the manager.
type Store interface {
	// Get returns the entry for (instrument, date), or
	// types.ErrEntryNotFound.
	Get(ctx context.Context, inst types.Instrument, date types.TradingDate) (*types.DailyCacheEntry, error)

	// Create inserts a new entry at version 1. Returns
	// errAlreadyExists if an entry for the key is present.
	Create(ctx context.Context, entry *types.DailyCacheEntry) error

	// Update performs a compare-and-swap write. It returns the new
	// version, types.ErrConcurrentModification if expectedVersion is
	// stale, or types.ErrInvalidTransition if the status change is
	// not monotonic.
	Update(ctx context.Context, entry *types.DailyCacheEntry, expectedVersion int64) (int64, error)

	// Close releases store resources.
	Close() error
}

// RangeSource supplies daily OHLC data for target price computation.
type RangeSource interface {
	DailyRange(ctx context.Context, inst types.Instrument, date types.TradingDate) (types.DailyRange, error)
}

// Config holds manager configuration.
type Config struct {
	// DefaultKFactor is the breakout sensitivity multiplier applied
	// when no per-instrument override exists.
	DefaultKFactor decimal.Decimal

	// KFactorOverrides maps instrument keys to per-instrument
	// k-factors.
	KFactorOverrides map[string]decimal.Decimal
}

// DefaultConfig returns k = 0.5 for every instrument.
func DefaultConfig() Config {
	return Config{DefaultKFactor: decimal.RequireFromString("0.5")}
}

// Manager coordinates lazy creation and compare-and-swap commits of
// daily cache entries. Safe for concurrent use; serialization happens
// at the store.
type Manager struct {
	cfg    Config
	store  Store
	ranges RangeSource
	logger *slog.Logger
}

// NewManager creates a cache manager on top of a store.
func NewManager(cfg Config, store Store, ranges RangeSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultKFactor.IsZero() {
		cfg.DefaultKFactor = DefaultConfig().DefaultKFactor
	}
	return &Manager{cfg: cfg, store: store, ranges: ranges, logger: logger}
}

// GetOrCreate returns the existing entry for (instrument, date) or
// creates one with status IDLE and the day's target price. Creation is
// safe under concurrent first-call races: the first successful creator
// wins and all others observe the created entry.
func (m *Manager) GetOrCreate(ctx context.Context, inst types.Instrument, date types.TradingDate) (*types.DailyCacheEntry, error) {
	entry, err := m.store.Get(ctx, inst, date)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, types.ErrEntryNotFound) {
		return nil, fmt.Errorf("load cache entry: %w", err)
	}

	target, err := m.computeTarget(ctx, inst, date)
	if err != nil {
		return nil, fmt.Errorf("compute target price: %w", err)
	}

	k := m.kFactor(inst)
	fresh := &types.DailyCacheEntry{
		Instrument:      inst,
		TradingDate:     date,
		TargetPrice:     target,
		KFactor:         k,
		Status:          types.StatusIdle,
		EntryPrice:      decimal.Zero,
		EntryVolume:     decimal.Zero,
		RemainingVolume: decimal.Zero,
		Version:         1,
		LastUpdatedAt:   time.Now().UTC(),
	}

	if err := m.store.Create(ctx, fresh); err != nil {
		if errors.Is(err, errAlreadyExists) {
			// Lost the creation race: the winner's entry is
			// authoritative.
			return m.store.Get(ctx, inst, date)
		}
		return nil, fmt.Errorf("create cache entry: %w", err)
	}

	m.logger.Info("cache entry created",
		"instrument", inst.Key(),
		"date", date,
		"target_price", target,
		"k_factor", k,
	)
	return fresh, nil
}

// Get returns the existing entry for (instrument, date) without
// creating one. Returns types.ErrEntryNotFound when absent.
func (m *Manager) Get(ctx context.Context, inst types.Instrument, date types.TradingDate) (*types.DailyCacheEntry, error) {
	return m.store.Get(ctx, inst, date)
}

// Commit writes entry via compare-and-swap against expectedVersion and
// returns the committed version. On types.ErrConcurrentModification the
// caller must re-read and recompute before retrying; the manager never
// silently overwrites a concurrent writer's result.
func (m *Manager) Commit(ctx context.Context, entry *types.DailyCacheEntry, expectedVersion int64) (int64, error) {
	entry.LastUpdatedAt = time.Now().UTC()

	version, err := m.store.Update(ctx, entry, expectedVersion)
	if err != nil {
		return 0, err
	}
	entry.Version = version
	return version, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// kFactor returns the instrument's k-factor.
func (m *Manager) kFactor(inst types.Instrument) decimal.Decimal {
	if k, ok := m.cfg.KFactorOverrides[inst.Key()]; ok {
		return k
	}
	return m.cfg.DefaultKFactor
}

// computeTarget derives the day's breakout target:
// today_open + k * (prev_high - prev_low). When the current day's open
// is not yet published, the previous close stands in for it.
func (m *Manager) computeTarget(ctx context.Context, inst types.Instrument, date types.TradingDate) (decimal.Decimal, error) {
	prev, err := m.ranges.DailyRange(ctx, inst, date.Prev())
	if err != nil {
		return decimal.Zero, err
	}

	open := prev.Close
	if today, err := m.ranges.DailyRange(ctx, inst, date); err == nil && today.Open.IsPositive() {
		open = today.Open
	}

	k := m.kFactor(inst)
	return open.Add(prev.Range().Mul(k)), nil
}
