// Package execution submits market orders and reconciles their fills.
package execution

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"breakout-bot/internal/exchange"
	"breakout-bot/internal/types"
)

// volumePrecision bounds the converted volume for cash-sized buys.
const volumePrecision = 8

// Config holds executor settings.
type Config struct {
	// MaxPollAttempts bounds the order status polling loop.
	MaxPollAttempts int

	// MaxSubmitRetries bounds in-process retries of retryable
	// submission failures.
	MaxSubmitRetries int

	// Currency is the cash currency buys are funded from.
	Currency string
}

// DefaultConfig returns the default executor settings.
func DefaultConfig() Config {
	return Config{
		MaxPollAttempts:  5,
		MaxSubmitRetries: 2,
		Currency:         "KRW",
	}
}

// Executor submits orders through the exchange capability boundary,
// polls for fill status with bounded backoff, and classifies the
// outcome. It never mutates the cache: order placement and state
// commitment are two sequential steps owned by the caller.
type Executor struct {
	cfg      Config
	registry *exchange.Registry
	backoff  BackoffPolicy
	logger   *slog.Logger
}

// NewExecutor creates an order executor.
func NewExecutor(cfg Config, registry *exchange.Registry, backoff BackoffPolicy, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if backoff == nil {
		backoff = DefaultBackoff()
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultConfig().MaxPollAttempts
	}
	if cfg.Currency == "" {
		cfg.Currency = DefaultConfig().Currency
	}
	return &Executor{cfg: cfg, registry: registry, backoff: backoff, logger: logger}
}

// Submit executes a market order and reports the confirmed outcome.
// Exchange failures surface as a FAILED result carrying the error
// kind, not as a returned error, so callers always get a structured
// outcome to commit.
func (e *Executor) Submit(ctx context.Context, req types.OrderRequest) types.ExecutionResult {
	adapter, err := e.registry.ForInstrument(req.Instrument)
	if err != nil {
		return e.failed(req, decimal.Zero, types.ErrorKindNonRetryable, err)
	}

	volume, result, ok := e.resolveVolume(ctx, adapter, req)
	if !ok {
		return result
	}

	clientOrderID := uuid.New().String()
	orderID, err := e.placeWithRetry(ctx, adapter, req, volume, clientOrderID)
	if err != nil {
		return e.failed(req, volume, types.KindOf(err), err)
	}

	e.logger.Info("order submitted",
		"instrument", req.Instrument.Key(),
		"side", req.Side,
		"volume", volume,
		"order_id", orderID,
		"client_order_id", clientOrderID,
	)

	return e.pollUntilDone(ctx, adapter, req, orderID, volume)
}

// resolveVolume converts the request size to an order volume. BUY
// sizes are cash amounts converted at the current best ask; SELL sizes
// are volumes clamped to the actually available holding.
func (e *Executor) resolveVolume(ctx context.Context, adapter exchange.Adapter, req types.OrderRequest) (decimal.Decimal, types.ExecutionResult, bool) {
	switch req.Side {
	case types.SideBuy:
		price, err := e.latestPriceWithRetry(ctx, adapter, req.Instrument)
		if err != nil {
			return decimal.Zero, e.failed(req, decimal.Zero, types.KindOf(err), err), false
		}
		if !price.IsPositive() {
			err := fmt.Errorf("non-positive price for %s", req.Instrument)
			return decimal.Zero, e.failed(req, decimal.Zero, types.ErrorKindNonRetryable, err), false
		}
		volume := req.Size.Div(price).RoundFloor(volumePrecision)
		if !volume.IsPositive() {
			err := fmt.Errorf("%w: budget %s buys no volume at %s", types.ErrInsufficientBalance, req.Size, price)
			return decimal.Zero, e.failed(req, decimal.Zero, types.ErrorKindNonRetryable, err), false
		}
		return volume, types.ExecutionResult{}, true

	case types.SideSell:
		available, err := adapter.AvailableVolume(ctx, req.Instrument)
		if err != nil {
			return decimal.Zero, e.failed(req, decimal.Zero, types.KindOf(err), err), false
		}
		volume := req.Size
		if available.LessThan(volume) {
			// Selling less than requested is not an error; the
			// exchange is the authority on what is held.
			e.logger.Warn("sell volume clamped to available balance",
				"instrument", req.Instrument.Key(),
				"requested", req.Size,
				"available", available,
			)
			volume = available
		}
		if !volume.IsPositive() {
			err := fmt.Errorf("%w: nothing to sell for %s", types.ErrInsufficientBalance, req.Instrument)
			return decimal.Zero, e.failed(req, decimal.Zero, types.ErrorKindNonRetryable, err), false
		}
		return volume, types.ExecutionResult{}, true

	default:
		err := fmt.Errorf("unsupported side %v", req.Side)
		return decimal.Zero, e.failed(req, decimal.Zero, types.ErrorKindNonRetryable, err), false
	}
}

// latestPriceWithRetry absorbs transient price lookup failures with
// bounded backoff.
func (e *Executor) latestPriceWithRetry(ctx context.Context, adapter exchange.Adapter, inst types.Instrument) (decimal.Decimal, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxSubmitRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.backoff.Delay(attempt-1)); err != nil {
				return decimal.Zero, err
			}
		}
		price, err := adapter.LatestPrice(ctx, inst)
		if err == nil {
			return price, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			break
		}
	}
	return decimal.Zero, lastErr
}

// placeWithRetry submits the order, retrying only retryable failures.
func (e *Executor) placeWithRetry(ctx context.Context, adapter exchange.Adapter, req types.OrderRequest, volume decimal.Decimal, clientOrderID string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxSubmitRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.backoff.Delay(attempt-1)); err != nil {
				return "", err
			}
		}
		// The client order ID stays fixed across retries so a
		// submission that actually reached the exchange is not
		// duplicated.
		orderID, err := adapter.PlaceMarketOrder(ctx, req.Instrument, req.Side, volume, clientOrderID)
		if err == nil {
			return orderID, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			break
		}
		e.logger.Warn("order submission retry",
			"instrument", req.Instrument.Key(),
			"attempt", attempt+1,
			"err", err,
		)
	}
	return "", lastErr
}

// pollUntilDone polls order status up to the attempt budget with
// increasing backoff, stopping early on a terminal state. Exhausting
// the budget does not cancel the exchange order, which may still fill
// later; the caller re-evaluates on the next tick.
func (e *Executor) pollUntilDone(ctx context.Context, adapter exchange.Adapter, req types.OrderRequest, orderID string, requested decimal.Decimal) types.ExecutionResult {
	filled := decimal.Zero
	avgPrice := decimal.Zero

	for attempt := 0; attempt < e.cfg.MaxPollAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, e.backoff.Delay(attempt-1)); err != nil {
				break
			}
		}

		status, err := adapter.GetOrderStatus(ctx, orderID)
		if err != nil {
			if types.IsRetryable(err) {
				continue
			}
			return e.failed(req, requested, types.KindOf(err), err)
		}

		filled = status.FilledVolume
		avgPrice = status.AveragePrice

		if status.Terminal || filled.GreaterThanOrEqual(requested) {
			return e.classify(req, requested, filled, avgPrice)
		}
	}

	// Attempt budget exhausted with the fill incomplete.
	if filled.IsPositive() {
		return e.classify(req, requested, filled, avgPrice)
	}
	return types.ExecutionResult{
		Instrument:      req.Instrument,
		Side:            req.Side,
		Outcome:         types.OutcomeFailed,
		ExecutedVolume:  decimal.Zero,
		RemainingVolume: requested,
		ErrorKind:       types.ErrorKindTimeout,
		Message:         types.ErrOrderTimeout.Error(),
	}
}

// classify maps a confirmed fill state onto an outcome. The executed
// and remaining volumes always sum to the requested size.
func (e *Executor) classify(req types.OrderRequest, requested, filled, avgPrice decimal.Decimal) types.ExecutionResult {
	result := types.ExecutionResult{
		Instrument:      req.Instrument,
		Side:            req.Side,
		ExecutedVolume:  filled,
		RemainingVolume: requested.Sub(filled),
		AveragePrice:    avgPrice,
	}
	switch {
	case filled.GreaterThanOrEqual(requested):
		result.Outcome = types.OutcomeFullFill
		result.ExecutedVolume = requested
		result.RemainingVolume = decimal.Zero
	case filled.IsPositive():
		result.Outcome = types.OutcomePartialFill
	default:
		result.Outcome = types.OutcomeNoFill
	}
	return result
}

// failed builds a FAILED result carrying instrument, kind, and message.
func (e *Executor) failed(req types.OrderRequest, requested decimal.Decimal, kind types.ErrorKind, err error) types.ExecutionResult {
	e.logger.Error("order execution failed",
		"instrument", req.Instrument.Key(),
		"side", req.Side,
		"kind", kind,
		"err", err,
	)
	return types.ExecutionResult{
		Instrument:      req.Instrument,
		Side:            req.Side,
		Outcome:         types.OutcomeFailed,
		ExecutedVolume:  decimal.Zero,
		RemainingVolume: requested,
		ErrorKind:       kind,
		Message:         err.Error(),
	}
}
