package alerting

import (
	"context"
	"errors"
)

// MultiAlerter fans an alert out to several alerters. Delivery
// failures are collected, not short-circuited: one broken channel must
// not silence the others.
type MultiAlerter struct {
	alerters []Alerter
}

// NewMultiAlerter creates an alerter that sends to all given alerters.
func NewMultiAlerter(alerters ...Alerter) *MultiAlerter {
	return &MultiAlerter{alerters: alerters}
}

// Name returns the name of the alerter.
func (m *MultiAlerter) Name() string {
	return "multi"
}

// Alert sends to every alerter and joins any errors.
func (m *MultiAlerter) Alert(ctx context.Context, severity Severity, message string, fields ...any) error {
	var errs []error
	for _, a := range m.alerters {
		if err := a.Alert(ctx, severity, message, fields...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
