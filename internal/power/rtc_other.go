//go:build !linux

package power

import (
	"time"

	"github.com/google/uuid"
)

var (
	processStart = time.Now()
	processID    = uuid.New()
)

// BootTimeRTC falls back to process uptime off Linux. It restarts with every
// re-exec, so the wall clock is never restored from it on such hosts.
type BootTimeRTC struct{}

// Elapsed returns the time since the process started.
func (BootTimeRTC) Elapsed() time.Duration {
	return time.Since(processStart)
}

// BootID identifies this process, since Elapsed restarts with it.
func (BootTimeRTC) BootID() uuid.UUID {
	return processID
}
