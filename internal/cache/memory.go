package cache

import (
	"context"
	"sync"

	"breakout-bot/internal/types"
)

// MemoryStore is an in-memory Store used for tests and dry runs.
// CAS semantics match the SQLite store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*types.DailyCacheEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*types.DailyCacheEntry)}
}

func storeKey(inst types.Instrument, date types.TradingDate) string {
	return inst.Key() + "@" + string(date)
}

// Get returns a copy of the stored entry.
func (s *MemoryStore) Get(ctx context.Context, inst types.Instrument, date types.TradingDate) (*types.DailyCacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[storeKey(inst, date)]
	if !ok {
		return nil, types.ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

// Create inserts the entry; the first creator wins.
func (s *MemoryStore) Create(ctx context.Context, entry *types.DailyCacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(entry.Instrument, entry.TradingDate)
	if _, ok := s.entries[key]; ok {
		return errAlreadyExists
	}
	cp := *entry
	cp.Version = 1
	s.entries[key] = &cp
	return nil
}

// Update performs the compare-and-swap write.
func (s *MemoryStore) Update(ctx context.Context, entry *types.DailyCacheEntry, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey(entry.Instrument, entry.TradingDate)
	current, ok := s.entries[key]
	if !ok {
		return 0, types.ErrEntryNotFound
	}
	if current.Version != expectedVersion {
		return 0, types.ErrConcurrentModification
	}
	if !current.Status.CanAdvanceTo(entry.Status) {
		return 0, types.ErrInvalidTransition
	}

	cp := *entry
	cp.Version = expectedVersion + 1
	s.entries[key] = &cp
	return cp.Version, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
