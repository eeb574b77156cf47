package alerting

import (
	"context"
	"errors"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "INFO"},
		{SeverityWarning, "WARNING"},
		{SeverityCritical, "CRITICAL"},
		{Severity(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("String() = %s, want %s", got, tt.want)
		}
	}
}

func TestFormatFields(t *testing.T) {
	tests := []struct {
		name   string
		fields []any
		want   string
	}{
		{"empty", nil, ""},
		{"single pair", []any{"instrument", "upbit:KRW-BTC"}, "instrument=upbit:KRW-BTC"},
		{"two pairs", []any{"a", 1, "b", "x"}, "a=1 b=x"},
		{"non-string key skipped", []any{1, "x", "b", 2}, "b=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatFields(tt.fields...); got != tt.want {
				t.Errorf("FormatFields = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMockAlerter(t *testing.T) {
	mock := NewMockAlerter()
	ctx := context.Background()

	if err := mock.Alert(ctx, SeverityInfo, "Position entered", "instrument", "upbit:KRW-BTC"); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if err := mock.Alert(ctx, SeverityWarning, "Exit order did not fill"); err != nil {
		t.Fatalf("Alert: %v", err)
	}

	if mock.Count() != 2 {
		t.Errorf("Count = %d, want 2", mock.Count())
	}
	if !mock.HasAlertContaining("Position entered") {
		t.Error("missing entry alert")
	}
	if !mock.HasAlertWithSeverity(SeverityWarning) {
		t.Error("missing warning alert")
	}
	if mock.HasAlertWithSeverity(SeverityCritical) {
		t.Error("unexpected critical alert")
	}

	mock.Clear()
	if mock.Count() != 0 {
		t.Errorf("Count after Clear = %d, want 0", mock.Count())
	}
}

// failingAlerter always fails delivery.
type failingAlerter struct{}

func (failingAlerter) Name() string { return "failing" }

func (failingAlerter) Alert(context.Context, Severity, string, ...any) error {
	return errors.New("delivery failed")
}

func TestMultiAlerter_DeliversDespiteFailure(t *testing.T) {
	mock := NewMockAlerter()
	multi := NewMultiAlerter(failingAlerter{}, mock)

	err := multi.Alert(context.Background(), SeverityInfo, "hello")
	if err == nil {
		t.Error("expected the failing channel's error to surface")
	}
	if mock.Count() != 1 {
		t.Errorf("healthy channel received %d alerts, want 1", mock.Count())
	}
}

func TestConsoleAlerter(t *testing.T) {
	console := NewConsoleAlerter(nil)
	if console.Name() != "console" {
		t.Errorf("Name = %s, want console", console.Name())
	}
	if err := console.Alert(context.Background(), SeverityCritical, "engine degraded", "err", "boom"); err != nil {
		t.Errorf("Alert: %v", err)
	}
}
