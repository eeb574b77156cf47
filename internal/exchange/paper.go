package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

// PaperConfig controls the simulated fill behavior.
type PaperConfig struct {
	// FillRatio is the fraction of requested volume that fills
	// (1.0 = full fill). Values below 1 produce partial fills.
	FillRatio decimal.Decimal

	// FillAfterPolls delays the terminal status until the order has
	// been polled this many times. Zero fills immediately.
	FillAfterPolls int

	// Currency is the cash bucket fills settle against. Empty means KRW.
	Currency string
}

// DefaultPaperConfig returns immediate full fills.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{FillRatio: decimal.NewFromInt(1)}
}

type paperOrder struct {
	inst      types.Instrument
	side      types.Side
	requested decimal.Decimal
	filled    decimal.Decimal
	price     decimal.Decimal
	polls     int
}

// Paper is a deterministic in-memory exchange adapter used for paper
// trading and tests. It implements all three capability interfaces.
type Paper struct {
	name string
	cfg  PaperConfig

	mu           sync.Mutex
	prices       map[string]decimal.Decimal
	ranges       map[string]types.DailyRange
	cash         map[string]decimal.Decimal
	volumes      map[string]decimal.Decimal
	orders       map[string]*paperOrder
	usedClientID map[string]bool
	placed       int
}

// NewPaper creates a paper adapter for the given exchange name.
func NewPaper(name string, cfg PaperConfig) *Paper {
	if cfg.FillRatio.IsZero() {
		cfg.FillRatio = decimal.NewFromInt(1)
	}
	if cfg.Currency == "" {
		cfg.Currency = "KRW"
	}
	return &Paper{
		name:         name,
		cfg:          cfg,
		prices:       make(map[string]decimal.Decimal),
		ranges:       make(map[string]types.DailyRange),
		cash:         make(map[string]decimal.Decimal),
		volumes:      make(map[string]decimal.Decimal),
		orders:       make(map[string]*paperOrder),
		usedClientID: make(map[string]bool),
	}
}

// Name returns the exchange name.
func (p *Paper) Name() string {
	return p.name
}

// SetPrice sets the current price for an instrument.
func (p *Paper) SetPrice(inst types.Instrument, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[inst.Key()] = price
}

// SetDailyRange sets the OHLC range for an instrument and date.
func (p *Paper) SetDailyRange(inst types.Instrument, date types.TradingDate, r types.DailyRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ranges[inst.Key()+"@"+string(date)] = r
}

// SetCash sets the available cash for a currency.
func (p *Paper) SetCash(currency string, amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash[currency] = amount
}

// SetVolume sets the held volume for an instrument.
func (p *Paper) SetVolume(inst types.Instrument, volume decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volumes[inst.Key()] = volume
}

// PlacedOrders returns how many orders have been submitted.
func (p *Paper) PlacedOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placed
}

// LatestPrice returns the configured price for an instrument.
func (p *Paper) LatestPrice(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, ok := p.prices[inst.Key()]
	if !ok {
		return decimal.Zero, types.NewExchangeError(inst, "latest_price", types.ErrorKindNonRetryable,
			fmt.Errorf("no price for %s", inst))
	}
	return price, nil
}

// DailyRange returns the configured OHLC range.
func (p *Paper) DailyRange(ctx context.Context, inst types.Instrument, date types.TradingDate) (types.DailyRange, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.ranges[inst.Key()+"@"+string(date)]
	if !ok {
		return types.DailyRange{}, types.NewExchangeError(inst, "daily_range", types.ErrorKindNonRetryable,
			fmt.Errorf("no range for %s on %s", inst, date))
	}
	return r, nil
}

// PlaceMarketOrder records the order and schedules its simulated fill.
func (p *Paper) PlaceMarketOrder(ctx context.Context, inst types.Instrument, side types.Side, volume decimal.Decimal, clientOrderID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.usedClientID[clientOrderID] {
		return "", types.NewExchangeError(inst, "place_order", types.ErrorKindNonRetryable,
			fmt.Errorf("duplicate client order id %s", clientOrderID))
	}
	p.usedClientID[clientOrderID] = true

	price, ok := p.prices[inst.Key()]
	if !ok {
		return "", types.NewExchangeError(inst, "place_order", types.ErrorKindNonRetryable,
			fmt.Errorf("no price for %s", inst))
	}

	orderID := uuid.New().String()
	p.orders[orderID] = &paperOrder{
		inst:      inst,
		side:      side,
		requested: volume,
		price:     price,
	}
	p.placed++
	return orderID, nil
}

// GetOrderStatus advances the simulated fill and returns its state.
func (p *Paper) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	o, ok := p.orders[orderID]
	if !ok {
		return OrderStatus{}, types.NewExchangeError(types.Instrument{}, "order_status", types.ErrorKindNonRetryable,
			fmt.Errorf("unknown order %s", orderID))
	}

	o.polls++
	if o.polls <= p.cfg.FillAfterPolls {
		return OrderStatus{
			FilledVolume:    decimal.Zero,
			RemainingVolume: o.requested,
		}, nil
	}

	if o.filled.IsZero() {
		o.filled = o.requested.Mul(p.cfg.FillRatio)
		p.settle(o)
	}

	return OrderStatus{
		FilledVolume:    o.filled,
		RemainingVolume: o.requested.Sub(o.filled),
		AveragePrice:    o.price,
		Terminal:        true,
	}, nil
}

// settle adjusts balances after a fill. Caller holds the lock.
func (p *Paper) settle(o *paperOrder) {
	key := o.inst.Key()
	notional := o.filled.Mul(o.price)
	cur := p.cfg.Currency
	if o.side == types.SideBuy {
		p.volumes[key] = p.volumes[key].Add(o.filled)
		p.cash[cur] = p.cash[cur].Sub(notional)
	} else {
		p.volumes[key] = p.volumes[key].Sub(o.filled)
		p.cash[cur] = p.cash[cur].Add(notional)
	}
}

// AvailableCash returns the cash balance for a currency.
func (p *Paper) AvailableCash(ctx context.Context, currency string) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash[currency], nil
}

// AvailableVolume returns the held volume for an instrument.
func (p *Paper) AvailableVolume(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volumes[inst.Key()], nil
}
