package power

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
)

// pinPollInterval bounds each WaitForEdge call so a cancelled sleep is noticed.
const pinPollInterval = 250 * time.Millisecond

// ProcessPlatform sleeps by suspending the board (or idling in-process) and
// wakes by re-executing the daemon, so that wake always starts from boot.
type ProcessPlatform struct {
	// SuspendCommand, when set, is run to suspend the board. The argument
	// "{seconds}" is replaced with the wake timer in whole seconds, e.g.
	// []string{"rtcwake", "-m", "mem", "-s", "{seconds}"}.
	SuspendCommand []string

	// exec replaces the running process; syscall.Exec when nil.
	exec func(argv0 string, argv []string, envv []string) error
}

// DeepSleep suspends until the timer elapses or a wake pin reads its level,
// then re-executes the daemon. It returns only on failure or cancellation.
func (p *ProcessPlatform) DeepSleep(ctx context.Context, wake WakeConfig) error {
	logging.Info("Entering sleep", zap.Stringer("wake", wake))

	if len(p.SuspendCommand) > 0 {
		if err := p.suspend(ctx, wake); err != nil {
			return err
		}
	} else {
		cause, err := waitForWake(ctx, wake)
		if err != nil {
			return err
		}
		logging.Info("Woke from sleep", zap.String("cause", cause))
	}
	return p.reexec()
}

// Reset re-executes the daemon immediately.
func (p *ProcessPlatform) Reset() error {
	logging.Info("Resetting")
	logging.Sync()
	return p.reexec()
}

func (p *ProcessPlatform) suspend(ctx context.Context, wake WakeConfig) error {
	seconds := strconv.Itoa(int(wake.Timer / time.Second))
	args := make([]string, len(p.SuspendCommand))
	for i, a := range p.SuspendCommand {
		args[i] = strings.ReplaceAll(a, "{seconds}", seconds)
	}

	logging.Debug("Running suspend command", zap.Strings("argv", args))
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("suspend command %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (p *ProcessPlatform) reexec() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	run := p.exec
	if run == nil {
		run = syscall.Exec
	}
	logging.Sync()
	if err := run(self, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec %s: %w", self, err)
	}
	return nil
}

// waitForWake blocks until the timer fires or a pin reads its wake level and
// names the cause.
func waitForWake(ctx context.Context, wake WakeConfig) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	woke := make(chan string, len(wake.Pins))
	for _, wp := range wake.Pins {
		go watchPin(ctx, wp, woke)
	}

	var timer <-chan time.Time
	if wake.Timer > 0 {
		t := time.NewTimer(wake.Timer)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer:
		return "timer", nil
	case name := <-woke:
		return "pin " + name, nil
	}
}

func watchPin(ctx context.Context, wp WakePin, woke chan<- string) {
	for ctx.Err() == nil {
		if wp.Pin.Read() == wp.Level {
			select {
			case woke <- wp.Name:
			default:
			}
			return
		}
		wp.Pin.WaitForEdge(pinPollInterval)
	}
}
