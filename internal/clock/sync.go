package clock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/wifi"
)

const (
	retryDelay     = time.Second
	slowRetryDelay = 10 * time.Second
	maxFastRetries = 10
)

// Network hands out the station network for one operation.
type Network interface {
	Acquire(ctx context.Context, timeout time.Duration) (*wifi.Handle, error)
	Release(h *wifi.Handle)
}

// SyncWorker keeps Clock synced to Source.
type SyncWorker struct {
	Network Network
	Clock   *Clock
	Source  Source
	// Interval is how old a sync may get before the next one (default 1h).
	Interval time.Duration
	// Timeout bounds both the network acquire and the query (default 5s).
	Timeout time.Duration
	Metrics *metrics.Metrics

	// after is the timer used between attempts; tests replace it.
	after func(time.Duration) <-chan time.Time
}

// Run syncs whenever the clock has never been synced or the last sync is
// older than Interval, until ctx is cancelled. After a failed query it
// retries in one second, backing off to ten seconds once more than ten
// attempts in a row have failed.
func (w *SyncWorker) Run(ctx context.Context) {
	interval := w.interval()
	after := w.after
	if after == nil {
		after = time.After
	}

	failures := 0
	for {
		delay := interval
		if age := w.Clock.SinceSync(); age < 0 || age >= interval {
			err := w.SyncOnce(ctx)
			switch {
			case err == nil:
				failures = 0
			case ctx.Err() != nil:
				return
			case wifi.IsTimedOut(err) || wifi.IsUnavailable(err):
				delay = retryDelay
			default:
				if failures > maxFastRetries {
					failures = 0
					delay = slowRetryDelay
				} else {
					delay = retryDelay
				}
				failures++
			}
		} else {
			delay = interval - age
		}

		select {
		case <-ctx.Done():
			return
		case <-after(delay):
		}
	}
}

// SyncOnce acquires the network, queries Source and syncs the clock. The
// network is released on every path.
func (w *SyncWorker) SyncOnce(ctx context.Context) error {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	h, err := w.Network.Acquire(ctx, timeout)
	if err != nil {
		logging.Debug("Time sync skipped, network not available", zap.Error(err))
		w.Metrics.ObserveTimeSync("unavailable")
		return err
	}
	defer w.Network.Release(h)

	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t, err := w.Source.Time(qctx)
	if err != nil {
		logging.Warn("Time sync failed", zap.Error(err))
		w.Metrics.ObserveTimeSync("error")
		return err
	}

	before := w.Clock.Now()
	w.Clock.Sync(t)
	logging.Info("Clock synced",
		zap.Time("time", t),
		zap.Duration("drift", t.Sub(before)),
	)
	w.Metrics.ObserveTimeSync("ok")
	return nil
}

func (w *SyncWorker) interval() time.Duration {
	if w.Interval <= 0 {
		return time.Hour
	}
	return w.Interval
}
