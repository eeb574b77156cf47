// Package exchange defines the capability interfaces the engine
// consumes per exchange, and adapters implementing them.
package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// MarketDataProvider supplies price data for an instrument.
type MarketDataProvider interface {
	// LatestPrice returns the current best-ask price.
	LatestPrice(ctx context.Context, inst types.Instrument) (decimal.Decimal, error)

	// DailyRange returns the OHLC range for a trading date.
	DailyRange(ctx context.Context, inst types.Instrument, date types.TradingDate) (types.DailyRange, error)
}

// OrderStatus is the gateway's view of a submitted order.
type OrderStatus struct {
	FilledVolume    decimal.Decimal
	RemainingVolume decimal.Decimal
	AveragePrice    decimal.Decimal
	Terminal        bool
}

// OrderGateway submits orders and reports their fill progress.
type OrderGateway interface {
	// PlaceMarketOrder submits a market order sized in volume and
	// returns the exchange order ID. The client order ID is an
	// idempotency key.
	PlaceMarketOrder(ctx context.Context, inst types.Instrument, side types.Side, volume decimal.Decimal, clientOrderID string) (string, error)

	// GetOrderStatus returns the current fill state of an order.
	GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}

// BalanceProvider reports available funds and holdings.
type BalanceProvider interface {
	// AvailableCash returns the spendable cash balance in the given
	// currency.
	AvailableCash(ctx context.Context, currency string) (decimal.Decimal, error)

	// AvailableVolume returns the sellable volume held for an
	// instrument.
	AvailableVolume(ctx context.Context, inst types.Instrument) (decimal.Decimal, error)
}

// Adapter bundles the three capabilities one exchange supplies.
type Adapter interface {
	MarketDataProvider
	OrderGateway
	BalanceProvider

	// Name returns the exchange identifier this adapter serves.
	Name() string
}

// Registry selects adapters by an instrument's exchange field.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its exchange name. Registering the
// same name twice replaces the previous adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// ForInstrument returns the adapter serving the instrument's exchange.
func (r *Registry) ForInstrument(inst types.Instrument) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[inst.Exchange]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownExchange, inst.Exchange)
	}
	return a, nil
}

// RangeLookup routes daily-range queries through a registry so the
// cache layer can pull OHLC data without knowing about adapters.
type RangeLookup struct {
	registry *Registry
}

// NewRangeLookup creates a registry-backed range source.
func NewRangeLookup(registry *Registry) *RangeLookup {
	return &RangeLookup{registry: registry}
}

// DailyRange resolves the instrument's adapter and queries it.
func (l *RangeLookup) DailyRange(ctx context.Context, inst types.Instrument, date types.TradingDate) (types.DailyRange, error) {
	a, err := l.registry.ForInstrument(inst)
	if err != nil {
		return types.DailyRange{}, err
	}
	return a.DailyRange(ctx, inst, date)
}

// Exchanges returns the registered exchange names.
func (r *Registry) Exchanges() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
