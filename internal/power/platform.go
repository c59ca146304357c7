package power

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Platform enters sleep and resets the device.
type Platform interface {
	// DeepSleep arms the wake sources and sleeps. On hardware it does not
	// return; execution resumes at boot.
	DeepSleep(ctx context.Context, wake WakeConfig) error
	// Reset restarts the device.
	Reset() error
}

// RTC is a monotonic counter that keeps running while the device sleeps.
// Readings are only comparable within one boot; BootID names that boot, or
// is uuid.Nil when the counter never restarts.
type RTC interface {
	Elapsed() time.Duration
	BootID() uuid.UUID
}
