package wifi

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestBrokerErrorIs(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantTimedOut  bool
		wantUnavail   bool
		wantRetryable bool
		wantShort     string
	}{
		{
			name:          "timeout",
			err:           newTimedOut("waiting for address", context.DeadlineExceeded),
			wantTimedOut:  true,
			wantRetryable: true,
			wantShort:     "Wi-Fi busy",
		},
		{
			name:          "wrapped timeout",
			err:           fmt.Errorf("sync time: %w", newTimedOut("waiting for network lock", nil)),
			wantTimedOut:  true,
			wantRetryable: true,
			wantShort:     "Wi-Fi busy",
		},
		{
			name:        "unavailable",
			err:         ErrUnavailable,
			wantUnavail: true,
			wantShort:   "Wi-Fi not configured",
		},
		{
			name:      "stopped",
			err:       newStopped(context.Canceled),
			wantShort: "Wi-Fi off",
		},
		{
			name:      "foreign error",
			err:       errors.New("boom"),
			wantShort: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimedOut(tt.err); got != tt.wantTimedOut {
				t.Errorf("IsTimedOut() = %v, want %v", got, tt.wantTimedOut)
			}
			if got := IsUnavailable(tt.err); got != tt.wantUnavail {
				t.Errorf("IsUnavailable() = %v, want %v", got, tt.wantUnavail)
			}
			if got := IsRetryable(tt.err); got != tt.wantRetryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.wantRetryable)
			}
			if got := GetShortErrorMessage(tt.err); got != tt.wantShort {
				t.Errorf("GetShortErrorMessage() = %q, want %q", got, tt.wantShort)
			}
		})
	}
}

func TestBrokerErrorUnwrap(t *testing.T) {
	err := newTimedOut("waiting for address", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("BrokerError should unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
