package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"breakout-bot/internal/types"
)

// RateLimited wraps an adapter with a token-bucket limiter so that
// concurrent per-instrument cycles cannot exceed the exchange's request
// budget.
type RateLimited struct {
	inner   Adapter
	limiter *rate.Limiter
}

// NewRateLimited wraps an adapter with the given requests-per-second
// budget and burst size. A burst below 1 is raised to 1, since a
// zero-burst limiter rejects every Wait.
func NewRateLimited(inner Adapter, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the wrapped adapter's exchange name.
func (r *RateLimited) Name() string {
	return r.inner.Name()
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// LatestPrice delegates after acquiring a rate token.
func (r *RateLimited) LatestPrice(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	if err := r.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return r.inner.LatestPrice(ctx, inst)
}

// DailyRange delegates after acquiring a rate token.
func (r *RateLimited) DailyRange(ctx context.Context, inst types.Instrument, date types.TradingDate) (types.DailyRange, error) {
	if err := r.wait(ctx); err != nil {
		return types.DailyRange{}, err
	}
	return r.inner.DailyRange(ctx, inst, date)
}

// PlaceMarketOrder delegates after acquiring a rate token.
func (r *RateLimited) PlaceMarketOrder(ctx context.Context, inst types.Instrument, side types.Side, volume decimal.Decimal, clientOrderID string) (string, error) {
	if err := r.wait(ctx); err != nil {
		return "", err
	}
	return r.inner.PlaceMarketOrder(ctx, inst, side, volume, clientOrderID)
}

// GetOrderStatus delegates after acquiring a rate token.
func (r *RateLimited) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	if err := r.wait(ctx); err != nil {
		return OrderStatus{}, err
	}
	return r.inner.GetOrderStatus(ctx, orderID)
}

// AvailableCash delegates after acquiring a rate token.
func (r *RateLimited) AvailableCash(ctx context.Context, currency string) (decimal.Decimal, error) {
	if err := r.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return r.inner.AvailableCash(ctx, currency)
}

// AvailableVolume delegates after acquiring a rate token.
func (r *RateLimited) AvailableVolume(ctx context.Context, inst types.Instrument) (decimal.Decimal, error) {
	if err := r.wait(ctx); err != nil {
		return decimal.Zero, err
	}
	return r.inner.AvailableVolume(ctx, inst)
}
