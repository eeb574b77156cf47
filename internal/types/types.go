// Package types defines shared types used across the strategy engine.
package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument identifies a tradable market on a specific exchange.
// It is an immutable configuration value.
type Instrument struct {
	Exchange string
	Ticker   string
	Interval string
}

// Key returns the canonical identifier used for cache addressing.
func (i Instrument) Key() string {
	return i.Exchange + ":" + i.Ticker
}

func (i Instrument) String() string {
	return i.Key()
}

// TradingDate is a calendar date in YYYY-MM-DD form. Cache entries are
// addressed by (instrument, trading date).
type TradingDate string

// NewTradingDate derives the trading date from a wall-clock time.
func NewTradingDate(t time.Time) TradingDate {
	return TradingDate(t.Format("2006-01-02"))
}

// Prev returns the previous calendar date.
func (d TradingDate) Prev() TradingDate {
	t, err := time.Parse("2006-01-02", string(d))
	if err != nil {
		return d
	}
	return NewTradingDate(t.AddDate(0, 0, -1))
}

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// CacheStatus represents the per-day position state of an instrument.
type CacheStatus int

const (
	StatusIdle CacheStatus = iota
	StatusEntered
	StatusExiting
	StatusClosed
)

func (s CacheStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusEntered:
		return "ENTERED"
	case StatusExiting:
		return "EXITING"
	case StatusClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true once the day's position lifecycle is over.
func (s CacheStatus) IsTerminal() bool {
	return s == StatusClosed
}

// CanAdvanceTo reports whether a transition to next is allowed.
// Transitions are monotonic: IDLE -> ENTERED -> EXITING -> CLOSED.
// Staying on the current status is always allowed.
func (s CacheStatus) CanAdvanceTo(next CacheStatus) bool {
	if next == s {
		return true
	}
	switch s {
	case StatusIdle:
		return next == StatusEntered
	case StatusEntered:
		return next == StatusExiting
	case StatusExiting:
		return next == StatusClosed
	default:
		return false
	}
}

// DailyCacheEntry is the durable per-(instrument, trading date) state.
// Version implements optimistic concurrency: a commit succeeds only if
// the version it read is still current.
type DailyCacheEntry struct {
	Instrument      Instrument
	TradingDate     TradingDate
	TargetPrice     decimal.Decimal
	KFactor         decimal.Decimal
	Status          CacheStatus
	EntryPrice      decimal.Decimal
	EntryVolume     decimal.Decimal
	RemainingVolume decimal.Decimal
	Version         int64
	LastUpdatedAt   time.Time
}

// HasPosition returns true while any volume is held or being unwound.
func (e *DailyCacheEntry) HasPosition() bool {
	return e.Status == StatusEntered || e.Status == StatusExiting
}

// OrderType represents the order execution style. Only market orders
// are supported.
type OrderType int

const (
	OrderTypeMarket OrderType = iota
)

func (t OrderType) String() string {
	return "MARKET"
}

// OrderRequest describes a single order to be executed.
// For BUY orders Size is a cash amount; for SELL orders it is a volume.
type OrderRequest struct {
	Instrument Instrument
	Side       Side
	Size       decimal.Decimal
	OrderType  OrderType
}

// Outcome classifies the result of an order execution attempt.
type Outcome int

const (
	OutcomeFullFill Outcome = iota
	OutcomePartialFill
	OutcomeNoFill
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFullFill:
		return "FULL_FILL"
	case OutcomePartialFill:
		return "PARTIAL_FILL"
	case OutcomeNoFill:
		return "NO_FILL"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrorKind classifies exchange-boundary failures.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindRetryable
	ErrorKindNonRetryable
	ErrorKindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "NONE"
	case ErrorKindRetryable:
		return "RETRYABLE"
	case ErrorKindNonRetryable:
		return "NON_RETRYABLE"
	case ErrorKindTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// ExecutionResult is the structured outcome of one order execution.
// ExecutedVolume + RemainingVolume always equals the originally
// requested size of the order that produced it.
type ExecutionResult struct {
	Instrument      Instrument
	Side            Side
	Outcome         Outcome
	ExecutedVolume  decimal.Decimal
	RemainingVolume decimal.Decimal
	AveragePrice    decimal.Decimal
	ErrorKind       ErrorKind
	Message         string
}

// Filled returns true if any volume executed.
func (r ExecutionResult) Filled() bool {
	return r.ExecutedVolume.IsPositive()
}

// DailyRange holds one day's OHLC prices for an instrument.
type DailyRange struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

// Range returns high minus low.
func (d DailyRange) Range() decimal.Decimal {
	return d.High.Sub(d.Low)
}

// Action is what a strategy decided to do on a tick.
type Action int

const (
	ActionNone Action = iota
	ActionEnter
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "NONE"
	case ActionEnter:
		return "ENTER"
	case ActionExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// CycleResult summarizes one evaluation-and-action pass over an
// instrument.
type CycleResult struct {
	Instrument  Instrument
	TradingDate TradingDate
	Action      Action
	Status      CacheStatus
	Reason      string
	Execution   *ExecutionResult
}

func (c CycleResult) String() string {
	return fmt.Sprintf("%s %s action=%s status=%s", c.Instrument, c.TradingDate, c.Action, c.Status)
}
