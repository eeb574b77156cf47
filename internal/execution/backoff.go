package execution

import (
	"context"
	"time"
)

// BackoffPolicy produces the delay before a retry attempt. Injectable
// so retry behavior is part of the testable contract.
type BackoffPolicy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the base delay per attempt, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns 500ms doubling up to 10s.
func DefaultBackoff() ExponentialBackoff {
	return ExponentialBackoff{Base: 500 * time.Millisecond, Max: 10 * time.Second}
}

// Delay returns Base * 2^attempt, capped at Max. Attempt counts from
// zero.
func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return b.Base
	}
	// 2^30 already exceeds any sane cap.
	if attempt > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<attempt)
	if d > b.Max {
		return b.Max
	}
	return d
}

// FixedBackoff waits the same duration between attempts. Zero makes
// tests run without sleeping.
type FixedBackoff struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (b FixedBackoff) Delay(attempt int) time.Duration {
	return b.Interval
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
