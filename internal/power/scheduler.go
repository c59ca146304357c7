package power

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/clock"
	"github.com/inkclock/inkclock/internal/idle"
	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
	"github.com/inkclock/inkclock/internal/retained"
)

// ErrRadioActive is returned when the radio is not Stopped after the broker
// released it; the scheduler never sleeps with the radio up.
var ErrRadioActive = errors.New("radio still active")

// Releaser takes the radio away from every user and keeps it stopped until
// resume is called.
type Releaser interface {
	ForceRelease(ctx context.Context) (resume func(), err error)
}

// RadioState reports the connection manager state.
type RadioState interface {
	State() radio.State
}

// RetainedStore holds the region that survives sleep.
type RetainedStore interface {
	Load() (retained.Region, error)
	Store(r retained.Region) error
}

// Scheduler puts the device to sleep once it has been idle long enough.
type Scheduler struct {
	Broker   Releaser
	Radio    RadioState
	Idle     *idle.Clock
	Retained RetainedStore
	Clock    *clock.Clock
	Platform Platform
	RTC      RTC
	Pins     []WakePin

	// Page reports the page the display shows, kept across the sleep. When
	// nil the stored index is left as is.
	Page func() uint32

	// Run parameters.
	Duration      time.Duration
	IdleThreshold time.Duration
	CheckInterval time.Duration

	Metrics *metrics.Metrics
}

// NoteActivity marks user input or a finished network operation.
func (s *Scheduler) NoteActivity() {
	s.Idle.Touch()
}

// MaybeSleep sleeps if nothing has happened for idleThreshold. It reports
// whether a sleep was entered; on hardware a successful sleep never returns.
// A zero duration arms no wake timer, leaving only the wake pins.
func (s *Scheduler) MaybeSleep(ctx context.Context, duration, idleThreshold time.Duration) (bool, error) {
	idleFor := s.Idle.IdleFor()
	if idleFor <= idleThreshold {
		return false, nil
	}

	logging.Info("Idle, preparing to sleep",
		zap.Duration("idle_for", idleFor),
		zap.Duration("duration", duration),
	)

	resume, err := s.Broker.ForceRelease(ctx)
	if err != nil {
		return false, fmt.Errorf("release radio: %w", err)
	}
	// The radio stays held down until the platform returns from sleep.
	defer resume()

	if err := s.checkStopped(); err != nil {
		return false, err
	}

	region, err := s.Retained.Load()
	if err != nil && !errors.Is(err, retained.ErrCorrupt) {
		return false, fmt.Errorf("load retained region: %w", err)
	}
	region.WhenSlept = uint64(s.Clock.Now().Unix())
	region.RTCAtSleep = uint64(s.RTC.Elapsed().Milliseconds())
	region.BootID = s.RTC.BootID()
	if s.Clock.Synced() {
		region.LastSync = uint64(s.Clock.LastSync().Unix())
	}
	if s.Page != nil {
		region.PageIndex = s.Page()
	}
	if err := s.Retained.Store(region); err != nil {
		return false, fmt.Errorf("persist sleep time: %w", err)
	}

	wake := WakeConfig{Pins: s.Pins}
	if duration > 0 {
		wake.Timer = duration
	}

	abort := func(cause error) (bool, error) {
		// Still awake; the stored timestamp must not be applied on next boot.
		region.WhenSlept, region.RTCAtSleep = 0, 0
		if serr := s.Retained.Store(region); serr != nil {
			logging.Warn("Failed to clear sleep time", zap.Error(serr))
		}
		return false, cause
	}

	if err := s.checkStopped(); err != nil {
		return abort(err)
	}

	s.Metrics.ObserveSleep()
	if err := s.Platform.DeepSleep(ctx, wake); err != nil {
		return abort(fmt.Errorf("deep sleep: %w", err))
	}
	return true, nil
}

func (s *Scheduler) checkStopped() error {
	if state := s.Radio.State(); state != radio.StateStopped {
		logging.Warn("Refusing to sleep with radio active", zap.Stringer("state", state))
		return fmt.Errorf("%w: %s", ErrRadioActive, state)
	}
	return nil
}

// Run checks for idleness every CheckInterval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.CheckInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.MaybeSleep(ctx, s.Duration, s.IdleThreshold); err != nil && ctx.Err() == nil {
				logging.Warn("Sleep attempt failed", zap.Error(err))
			}
		}
	}
}

// RestoreWallClock rebuilds wall time after a sleep: the stored wall time
// plus the RTC time elapsed since. It reports false, leaving c untouched,
// when the region carries no sleep or the RTC restarted in between.
func RestoreWallClock(region retained.Region, rtc RTC, c *clock.Clock) (time.Time, bool) {
	if !region.Slept() {
		return time.Time{}, false
	}
	if boot := rtc.BootID(); region.BootID != boot {
		logging.Warn("RTC restarted across sleep, not restoring wall clock",
			zap.Stringer("boot_at_sleep", region.BootID),
			zap.Stringer("boot_now", boot),
		)
		return time.Time{}, false
	}

	now := rtc.Elapsed()
	atSleep := time.Duration(region.RTCAtSleep) * time.Millisecond
	if now < atSleep {
		logging.Warn("RTC went backwards across sleep, not restoring wall clock",
			zap.Duration("rtc_now", now),
			zap.Duration("rtc_at_sleep", atSleep),
		)
		return time.Time{}, false
	}

	wall := time.Unix(int64(region.WhenSlept), 0).Add(now - atSleep)
	c.Set(wall)
	if region.LastSync != 0 {
		c.RestoreLastSync(time.Unix(int64(region.LastSync), 0))
	}
	logging.Info("Wall clock restored after sleep",
		zap.Time("time", wall),
		zap.Duration("slept_for", now-atSleep),
	)
	return wall, true
}
