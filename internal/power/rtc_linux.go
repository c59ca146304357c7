//go:build linux

package power

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const bootIDPath = "/proc/sys/kernel/random/boot_id"

// BootTimeRTC reads CLOCK_BOOTTIME, which keeps counting through suspend and
// across re-exec of the daemon.
type BootTimeRTC struct{}

// Elapsed returns the time since the board booted.
func (BootTimeRTC) Elapsed() time.Duration {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0
	}
	return time.Duration(ts.Nano())
}

// BootID returns the kernel boot id. CLOCK_BOOTTIME restarts with it after a
// power cut.
func (BootTimeRTC) BootID() uuid.UUID {
	data, err := os.ReadFile(bootIDPath)
	if err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return uuid.Nil
	}
	return id
}
