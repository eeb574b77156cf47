package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements Store using SQLite. Decimals are stored as
// TEXT to avoid float drift; the version column backs the CAS commit
// protocol.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) a SQLite-backed store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// migrate creates the cache schema.
func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS daily_cache (
			exchange TEXT NOT NULL,
			ticker TEXT NOT NULL,
			interval TEXT NOT NULL DEFAULT '',
			trading_date TEXT NOT NULL,
			target_price TEXT NOT NULL,
			k_factor TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			entry_price TEXT NOT NULL DEFAULT '0',
			entry_volume TEXT NOT NULL DEFAULT '0',
			remaining_volume TEXT NOT NULL DEFAULT '0',
			version INTEGER NOT NULL DEFAULT 1,
			last_updated_at DATETIME NOT NULL,
			PRIMARY KEY (exchange, ticker, trading_date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_daily_cache_date ON daily_cache(trading_date)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}

// Get returns the entry for (instrument, date).
func (s *SQLiteStore) Get(ctx context.Context, inst types.Instrument, date types.TradingDate) (*types.DailyCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT interval, target_price, k_factor, status,
		       entry_price, entry_volume, remaining_volume,
		       version, last_updated_at
		FROM daily_cache
		WHERE exchange = ? AND ticker = ? AND trading_date = ?`,
		inst.Exchange, inst.Ticker, string(date))

	var (
		interval  string
		target    string
		kFactor   string
		status    int
		entry     string
		volume    string
		remaining string
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&interval, &target, &kFactor, &status, &entry, &volume, &remaining, &version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrEntryNotFound
		}
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	out := &types.DailyCacheEntry{
		Instrument:    types.Instrument{Exchange: inst.Exchange, Ticker: inst.Ticker, Interval: interval},
		TradingDate:   date,
		Status:        types.CacheStatus(status),
		Version:       version,
		LastUpdatedAt: updatedAt,
	}

	var err error
	if out.TargetPrice, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("parse target_price: %w", err)
	}
	if out.KFactor, err = decimal.NewFromString(kFactor); err != nil {
		return nil, fmt.Errorf("parse k_factor: %w", err)
	}
	if out.EntryPrice, err = decimal.NewFromString(entry); err != nil {
		return nil, fmt.Errorf("parse entry_price: %w", err)
	}
	if out.EntryVolume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("parse entry_volume: %w", err)
	}
	if out.RemainingVolume, err = decimal.NewFromString(remaining); err != nil {
		return nil, fmt.Errorf("parse remaining_volume: %w", err)
	}
	return out, nil
}

// Create inserts a fresh entry at version 1. INSERT OR IGNORE keeps
// the first creator's row under concurrent races.
func (s *SQLiteStore) Create(ctx context.Context, e *types.DailyCacheEntry) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO daily_cache
			(exchange, ticker, interval, trading_date, target_price, k_factor,
			 status, entry_price, entry_volume, remaining_volume, version, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		e.Instrument.Exchange, e.Instrument.Ticker, e.Instrument.Interval,
		string(e.TradingDate), e.TargetPrice.String(), e.KFactor.String(),
		int(e.Status), e.EntryPrice.String(), e.EntryVolume.String(),
		e.RemainingVolume.String(), e.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return errAlreadyExists
	}
	e.Version = 1
	return nil
}

// Update performs the compare-and-swap write inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, e *types.DailyCacheEntry, expectedVersion int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT version, status FROM daily_cache
		WHERE exchange = ? AND ticker = ? AND trading_date = ?`,
		e.Instrument.Exchange, e.Instrument.Ticker, string(e.TradingDate))

	var currentVersion int64
	var currentStatus int
	if err := row.Scan(&currentVersion, &currentStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.ErrEntryNotFound
		}
		return 0, fmt.Errorf("read current version: %w", err)
	}

	if currentVersion != expectedVersion {
		return 0, types.ErrConcurrentModification
	}
	if !types.CacheStatus(currentStatus).CanAdvanceTo(e.Status) {
		return 0, types.ErrInvalidTransition
	}

	newVersion := expectedVersion + 1
	res, err := tx.ExecContext(ctx, `
		UPDATE daily_cache
		SET target_price = ?, k_factor = ?, status = ?,
		    entry_price = ?, entry_volume = ?, remaining_volume = ?,
		    version = ?, last_updated_at = ?
		WHERE exchange = ? AND ticker = ? AND trading_date = ? AND version = ?`,
		e.TargetPrice.String(), e.KFactor.String(), int(e.Status),
		e.EntryPrice.String(), e.EntryVolume.String(), e.RemainingVolume.String(),
		newVersion, e.LastUpdatedAt,
		e.Instrument.Exchange, e.Instrument.Ticker, string(e.TradingDate), expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("update cache entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return 0, types.ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return newVersion, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
