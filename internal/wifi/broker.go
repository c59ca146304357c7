package wifi

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/idle"
	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
)

const configPollInterval = 50 * time.Millisecond

// connection is the part of Manager the broker depends on.
type connection interface {
	State() radio.State
	Address() (netip.Addr, bool)
	Stop()
	RequestReconnect()
	WaitState(ctx context.Context, pred func(radio.State) bool) (radio.State, error)
	Suspend()
	Resume()
	WaitParked(ctx context.Context) error
}

// BrokerOptions configures a Broker.
type BrokerOptions struct {
	// IdleTimeout is how long the radio may sit unused before the watchdog stops it (default 30s).
	IdleTimeout time.Duration
	// WatchdogInterval is the watchdog tick (default 3s).
	WatchdogInterval time.Duration
	Metrics          *metrics.Metrics
}

// Handle grants use of the network for one logical operation.
type Handle struct {
	ID         uuid.UUID
	AcquiredAt time.Time
	LocalAddr  netip.Addr
}

// Snapshot describes the broker for the status API.
type Snapshot struct {
	State     radio.State
	Held      bool
	HolderID  string
	HeldSince time.Time
	IdleFor   time.Duration
}

// Broker is a mutual-exclusion gate over the station network.
type Broker struct {
	conn connection
	idle *idle.Clock
	opts BrokerOptions
	log  *zap.Logger

	mu        sync.Mutex
	held      bool
	holder    *Handle
	heldSince time.Time
	suspended bool          // set while ForceRelease holds the radio down
	freed     chan struct{} // closed and replaced whenever the flag clears
}

// NewBroker returns a broker over manager. A nil manager yields a broker whose
// every Acquire fails with ErrUnavailable.
func NewBroker(manager *Manager, clock *idle.Clock, opts BrokerOptions) *Broker {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Second
	}
	if opts.WatchdogInterval <= 0 {
		opts.WatchdogInterval = 3 * time.Second
	}
	if clock == nil {
		clock = idle.New()
	}
	b := &Broker{
		idle:  clock,
		opts:  opts,
		log:   logging.Named("broker"),
		freed: make(chan struct{}),
	}
	if manager != nil {
		b.conn = manager
	}
	return b
}

// Idle returns the idle clock the broker refreshes.
func (b *Broker) Idle() *idle.Clock {
	return b.idle
}

// Acquire waits up to timeout for exclusive use of a configured network.
func (b *Broker) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	if b.conn == nil {
		b.opts.Metrics.ObserveAcquire("unavailable")
		return nil, ErrUnavailable
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fail := func(stage string, err error) (*Handle, error) {
		if ctx.Err() != nil {
			b.opts.Metrics.ObserveAcquire("cancelled")
			return nil, newStopped(ctx.Err())
		}
		b.opts.Metrics.ObserveAcquire("timeout")
		b.log.Debug("Acquire timed out", zap.String("stage", stage), zap.Duration("timeout", timeout))
		return nil, newTimedOut(stage, err)
	}

	stopped, err := b.reconnectIfStopped(actx)
	if err != nil {
		return fail("waiting for radio release", err)
	}
	if stopped {
		if _, err := b.conn.WaitState(actx, func(s radio.State) bool {
			return s != radio.StateStopped
		}); err != nil {
			return fail("waiting for radio to start", err)
		}
	}

	h := &Handle{ID: uuid.New()}
	if err := b.lock(actx, h); err != nil {
		return fail("waiting for network lock", err)
	}

	addr, err := b.waitConfigured(actx)
	if err != nil {
		b.unlock(h)
		return fail("waiting for address", err)
	}

	b.mu.Lock()
	if b.holder != h {
		// Reclaimed by the watchdog while waiting for an address.
		b.mu.Unlock()
		return fail("waiting for address", context.DeadlineExceeded)
	}
	h.AcquiredAt = time.Now()
	h.LocalAddr = addr
	b.mu.Unlock()
	b.idle.Touch()

	b.opts.Metrics.ObserveAcquire("ok")
	b.log.Debug("Network acquired", zap.Stringer("handle", h.ID), zap.Stringer("addr", addr))
	return h, nil
}

// Release returns the network. Releasing a handle twice, or a handle the
// watchdog already reclaimed, is a no-op.
func (b *Broker) Release(h *Handle) {
	if h == nil {
		return
	}
	if !b.unlock(h) {
		return
	}
	b.idle.Touch()
	b.opts.Metrics.ObserveRelease()
	b.log.Debug("Network released", zap.Stringer("handle", h.ID))
}

// WithNetwork acquires the network, runs fn and always releases.
func (b *Broker) WithNetwork(ctx context.Context, timeout time.Duration, fn func(h *Handle) error) error {
	h, err := b.Acquire(ctx, timeout)
	if err != nil {
		return err
	}
	defer b.Release(h)
	return fn(h)
}

// ForceRelease waits for any holder to finish, then stops the radio and
// keeps it stopped. The broker stays held and reconnects are ignored until
// resume is called; until then the state cannot leave Stopped.
func (b *Broker) ForceRelease(ctx context.Context) (resume func(), err error) {
	if b.conn == nil {
		return func() {}, nil
	}
	h := &Handle{ID: uuid.New()}
	if err := b.lock(ctx, h); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.suspended = true
	b.mu.Unlock()
	b.conn.Suspend()

	var once sync.Once
	resume = func() {
		once.Do(func() {
			b.conn.Resume()
			b.mu.Lock()
			b.suspended = false
			b.mu.Unlock()
			b.unlock(h)
			b.log.Debug("Radio hold lifted")
		})
	}

	b.conn.Stop()
	if err := b.conn.WaitParked(ctx); err != nil {
		resume()
		return nil, err
	}
	b.log.Info("Radio released for sleep")
	return resume, nil
}

// RunWatchdog stops the radio when it has been connected but unused for
// longer than the idle timeout. It returns when ctx ends.
func (b *Broker) RunWatchdog(ctx context.Context) {
	if b.conn == nil {
		return
	}
	ticker := time.NewTicker(b.opts.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.checkIdle()
		}
	}
}

func (b *Broker) checkIdle() {
	if b.conn.State() != radio.StateConnected {
		return
	}
	idleFor := b.idle.IdleFor()
	if idleFor <= b.opts.IdleTimeout {
		return
	}

	b.log.Info("Network idle, stopping radio", zap.Duration("idle_for", idleFor))
	b.conn.Stop()

	b.mu.Lock()
	wasHeld := b.held && !b.suspended
	b.mu.Unlock()
	if wasHeld {
		b.log.Warn("Reclaiming network from idle holder")
		b.unlock(nil)
	}
	b.opts.Metrics.ObserveWatchdogStop()
}

// Snapshot returns the broker state.
func (b *Broker) Snapshot() Snapshot {
	s := Snapshot{IdleFor: b.idle.IdleFor()}
	if b.conn != nil {
		s.State = b.conn.State()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s.Held = b.held
	s.HeldSince = b.heldSince
	if b.holder != nil {
		s.HolderID = b.holder.ID.String()
	}
	return s
}

// reconnectIfStopped asks a Stopped manager to reconnect and reports whether
// it did. While ForceRelease holds the radio down it waits for the hold to
// lift first.
func (b *Broker) reconnectIfStopped(ctx context.Context) (bool, error) {
	for {
		b.mu.Lock()
		if !b.suspended {
			stopped := b.conn.State() == radio.StateStopped
			if stopped {
				b.conn.RequestReconnect()
			}
			b.mu.Unlock()
			return stopped, nil
		}
		freed := b.freed
		b.mu.Unlock()

		select {
		case <-freed:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
}

// lock sets the held flag for h, waiting for it to clear first. Check and
// set happen under one critical section.
func (b *Broker) lock(ctx context.Context, h *Handle) error {
	for {
		b.mu.Lock()
		if !b.held {
			b.held = true
			b.holder = h
			b.heldSince = time.Now()
			b.mu.Unlock()
			return nil
		}
		freed := b.freed
		b.mu.Unlock()

		select {
		case <-freed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// unlock clears the flag. With a non-nil h it only does so if h is the
// current holder, and reports whether it did.
func (b *Broker) unlock(h *Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h != nil && b.holder != h {
		return false
	}
	if !b.held {
		return false
	}
	b.held = false
	b.holder = nil
	b.heldSince = time.Time{}
	close(b.freed)
	b.freed = make(chan struct{})
	return true
}

// waitConfigured polls until the link is Connected with an address. A
// manager that was stopped in the meantime is asked to reconnect.
func (b *Broker) waitConfigured(ctx context.Context) (netip.Addr, error) {
	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()
	for {
		switch b.conn.State() {
		case radio.StateStopped:
			b.conn.RequestReconnect()
		case radio.StateConnected:
			if addr, ok := b.conn.Address(); ok {
				return addr, nil
			}
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return netip.Addr{}, ctx.Err()
		}
	}
}
