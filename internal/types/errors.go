package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for the strategy engine.
var (
	// State errors. Never auto-retried: callers must re-read current
	// state and decide whether to re-issue.
	ErrConcurrentModification = errors.New("cache entry modified concurrently")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrNoPosition             = errors.New("no open position")
	ErrEntryNotFound          = errors.New("cache entry not found")

	// Validation errors, rejected before any side effect.
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrUnknownExchange   = errors.New("unknown exchange")

	// Allocation errors, short-circuit before order submission.
	ErrNoAllocation = errors.New("no allocation budget available")

	// Exchange errors.
	ErrOrderTimeout        = errors.New("order fill polling timed out")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// ExchangeError wraps a failure at the exchange capability boundary.
// It carries instrument identity, the operation, and the error kind so
// outer layers need no additional context lookup.
type ExchangeError struct {
	Instrument Instrument
	Op         string
	Kind       ErrorKind
	Err        error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange %s %s [%s]: %v", e.Instrument, e.Op, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates an ExchangeError for the given operation.
func NewExchangeError(inst Instrument, op string, kind ErrorKind, err error) *ExchangeError {
	return &ExchangeError{Instrument: inst, Op: op, Kind: kind, Err: err}
}

// IsRetryable reports whether err is an exchange error eligible for
// bounded in-process retry.
func IsRetryable(err error) bool {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind == ErrorKindRetryable
	}
	return false
}

// KindOf extracts the error kind from an exchange error chain.
// Non-exchange errors are classified as non-retryable.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ErrorKindNonRetryable
}
