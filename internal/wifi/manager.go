package wifi

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
)

const addressPollInterval = 100 * time.Millisecond

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// RetryBackoff is the pause after a failed association (default 5s).
	RetryBackoff time.Duration
	// DisconnectPause is the pause after a link loss before reassociating (default 1s).
	DisconnectPause time.Duration
	// ConnectTimeout bounds a single association attempt (default 30s).
	ConnectTimeout time.Duration
	// AccessPoint is used when started in access point mode.
	AccessPoint radio.APConfig
	Metrics     *metrics.Metrics
}

func (o *ManagerOptions) setDefaults() {
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Second
	}
	if o.DisconnectPause <= 0 {
		o.DisconnectPause = time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
}

// Manager drives a radio.Driver through the connection state machine.
type Manager struct {
	driver radio.Driver
	opts   ManagerOptions
	log    *zap.Logger

	mu      sync.Mutex
	state   radio.State
	mode    radio.Mode
	creds   radio.Credentials
	running bool
	// parked is set while the run loop idles in Stopped waiting for a
	// reconnect; suspended makes it ignore reconnects.
	parked    bool
	suspended bool
	changed   chan struct{} // closed and replaced on every state change
	subs      map[chan radio.State]struct{}

	stopSig      chan struct{}
	reconnectSig chan struct{}
	done         chan struct{}
}

// NewManager returns a Manager in the Stopped state.
func NewManager(driver radio.Driver, opts ManagerOptions) *Manager {
	opts.setDefaults()
	return &Manager{
		driver:       driver,
		opts:         opts,
		log:          logging.Named("wifi"),
		state:        radio.StateStopped,
		changed:      make(chan struct{}),
		subs:         make(map[chan radio.State]struct{}),
		stopSig:      make(chan struct{}, 1),
		reconnectSig: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Start brings the radio up in mode and blocks until the link is up and an
// address is assigned. creds is required in station mode. The manager keeps
// running until ctx is cancelled; Start returns early only if ctx ends.
func (m *Manager) Start(ctx context.Context, mode radio.Mode, creds *radio.Credentials) (netip.Addr, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return netip.Addr{}, errors.New("connection manager already started")
	}
	if mode == radio.ModeStation {
		if creds == nil {
			m.mu.Unlock()
			return netip.Addr{}, errors.New("station mode requires credentials")
		}
		m.creds = *creds
	}
	m.mode = mode
	m.running = true
	m.mu.Unlock()

	m.log.Info("Starting connection manager", zap.Stringer("mode", mode))
	go m.run(ctx)

	return m.WaitConfigured(ctx)
}

// Done is closed when the manager goroutine exits.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Stop asks the manager to park the radio in Stopped.
func (m *Manager) Stop() {
	signal(m.stopSig)
}

// RequestReconnect asks a Stopped manager to bring the radio back up.
func (m *Manager) RequestReconnect() {
	signal(m.reconnectSig)
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Suspend makes the manager ignore reconnect requests until Resume. Pair it
// with Stop and WaitParked to keep the radio down.
func (m *Manager) Suspend() {
	m.mu.Lock()
	m.suspended = true
	m.mu.Unlock()
}

// Resume lets reconnect requests through again.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.suspended = false
	m.mu.Unlock()
}

// WaitParked blocks until the run loop sits in Stopped waiting for a
// reconnect, or the manager is not running. Once it returns under Suspend
// the state cannot leave Stopped until Resume.
func (m *Manager) WaitParked(ctx context.Context) error {
	for {
		m.mu.Lock()
		ok := !m.running || (m.parked && m.state == radio.StateStopped)
		changed := m.changed
		m.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-changed:
		case <-m.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// State returns the current connection state.
func (m *Manager) State() radio.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the mode the manager was started in.
func (m *Manager) Mode() radio.Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// LinkUp reports whether the driver has a link.
func (m *Manager) LinkUp() bool {
	return m.driver.LinkUp()
}

// Address returns the interface address while Connected.
func (m *Manager) Address() (netip.Addr, bool) {
	if m.State() != radio.StateConnected {
		return netip.Addr{}, false
	}
	return m.driver.Address()
}

// watch returns the current state and a channel closed on the next change.
func (m *Manager) watch() (radio.State, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.changed
}

// WaitState blocks until pred holds for the current state.
func (m *Manager) WaitState(ctx context.Context, pred func(radio.State) bool) (radio.State, error) {
	for {
		state, changed := m.watch()
		if pred(state) {
			return state, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// WaitConfigured blocks until the manager is Connected and the interface
// has an address.
func (m *Manager) WaitConfigured(ctx context.Context) (netip.Addr, error) {
	ticker := time.NewTicker(addressPollInterval)
	defer ticker.Stop()
	for {
		state, changed := m.watch()
		if state == radio.StateConnected {
			if addr, ok := m.driver.Address(); ok {
				return addr, nil
			}
		}
		select {
		case <-changed:
		case <-ticker.C:
		case <-ctx.Done():
			return netip.Addr{}, ctx.Err()
		}
	}
}

// Subscribe returns a channel receiving every new state. Slow subscribers
// miss intermediate states. Call cancel to unsubscribe.
func (m *Manager) Subscribe() (<-chan radio.State, func()) {
	ch := make(chan radio.State, 16)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, ch)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) transition(to radio.State) {
	m.mu.Lock()
	from := m.state
	if !radio.ValidTransition(from, to) {
		m.log.Error("Invalid state transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}
	m.state = to
	close(m.changed)
	m.changed = make(chan struct{})
	for ch := range m.subs {
		select {
		case ch <- to:
		default:
		}
	}
	m.mu.Unlock()

	logging.LogStateTransition("wifi", from, to)
	m.opts.Metrics.ObserveTransition(from.String(), to.String())
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	defer func() {
		if err := m.driver.Stop(context.Background()); err != nil {
			m.log.Warn("Failed to stop radio on shutdown", zap.Error(err))
		}
	}()

	if m.Mode() == radio.ModeAccessPoint {
		m.runAccessPoint(ctx)
		return
	}
	m.runStation(ctx)
}

// untilStop runs fn, cancelling it if a stop signal arrives first. A stop that
// is pending when fn returns still wins.
func (m *Manager) untilStop(ctx context.Context, fn func(context.Context) error) (bool, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- fn(fctx) }()

	select {
	case <-m.stopSig:
		cancel()
		<-errc
		return true, nil
	case err := <-errc:
		select {
		case <-m.stopSig:
			return true, err
		default:
		}
		return false, err
	}
}

func pause(d time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// park stops the radio and waits for a reconnect request. It returns false
// if ctx ended while parked.
func (m *Manager) park(ctx context.Context) bool {
	if err := m.driver.Stop(ctx); err != nil {
		m.log.Warn("Radio stop reported an error", zap.Error(err))
	}
	// A reconnect requested before this stop is stale.
	select {
	case <-m.reconnectSig:
	default:
	}
	m.transition(radio.StateStopped)
	m.setParked(true)

	for {
		select {
		case <-m.reconnectSig:
			m.mu.Lock()
			if m.suspended {
				m.mu.Unlock()
				m.log.Debug("Reconnect ignored while suspended")
				continue
			}
			m.parked = false
			m.mu.Unlock()

			// A stop that raced the reconnect is superseded by it.
			select {
			case <-m.stopSig:
			default:
			}
			m.log.Info("Reconnect requested")
			return true
		case <-ctx.Done():
			m.setParked(false)
			return false
		}
	}
}

func (m *Manager) setParked(p bool) {
	m.mu.Lock()
	m.parked = p
	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// startDriver retries fn with a constant backoff until it succeeds or ctx ends.
func (m *Manager) startDriver(ctx context.Context, what string, fn func(context.Context) error) error {
	b := backoff.WithContext(backoff.NewConstantBackOff(m.opts.RetryBackoff), ctx)
	err := backoff.RetryNotify(func() error {
		return fn(ctx)
	}, b, func(err error, next time.Duration) {
		m.log.Warn("Radio start failed, retrying",
			zap.String("mode", what),
			zap.Duration("retry_in", next),
			zap.Error(err),
		)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (m *Manager) runStation(ctx context.Context) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()

	attempt := 0
	for ctx.Err() == nil {
		if !m.driver.Started() {
			if err := m.startDriver(ctx, "station", func(ctx context.Context) error {
				return m.driver.StartStation(ctx, creds)
			}); err != nil {
				return
			}
		}

		attempt++
		m.transition(radio.StateConnecting)
		m.log.Info("Associating", zap.String("ssid", creds.SSID), zap.Int("attempt", attempt))

		stopped, err := m.untilStop(ctx, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
			defer cancel()
			return m.driver.Connect(cctx)
		})
		if ctx.Err() != nil {
			return
		}
		if stopped {
			if !m.park(ctx) {
				return
			}
			attempt = 0
			continue
		}
		if err != nil {
			m.log.Warn("Association failed",
				zap.String("ssid", creds.SSID),
				zap.Duration("retry_in", m.opts.RetryBackoff),
				zap.Error(err),
			)
			if stopped, _ := m.untilStop(ctx, pause(m.opts.RetryBackoff)); stopped {
				if !m.park(ctx) {
					return
				}
				attempt = 0
			}
			continue
		}

		attempt = 0
		m.transition(radio.StateConnected)

		stopped, _ = m.untilStop(ctx, m.driver.WaitDisconnect)
		if ctx.Err() != nil {
			return
		}
		if stopped {
			if !m.park(ctx) {
				return
			}
			continue
		}

		m.transition(radio.StateDisconnected)
		m.log.Warn("Link lost, reconnecting", zap.Duration("pause", m.opts.DisconnectPause))
		if stopped, _ := m.untilStop(ctx, pause(m.opts.DisconnectPause)); stopped {
			if !m.park(ctx) {
				return
			}
		}
	}
}

func (m *Manager) runAccessPoint(ctx context.Context) {
	for ctx.Err() == nil {
		m.transition(radio.StateConnecting)
		if err := m.startDriver(ctx, "access-point", func(ctx context.Context) error {
			return m.driver.StartAccessPoint(ctx, m.opts.AccessPoint)
		}); err != nil {
			return
		}
		m.transition(radio.StateConnected)
		m.log.Info("Access point up",
			zap.String("ssid", m.opts.AccessPoint.SSID),
			zap.String("address", m.opts.AccessPoint.Address.String()),
		)

		select {
		case <-m.stopSig:
			if !m.park(ctx) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// String implements fmt.Stringer for log fields.
func (m *Manager) String() string {
	return fmt.Sprintf("wifi.Manager(%s, %s)", m.Mode(), m.State())
}
