package radio

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"time"
)

// ErrAssociationFailed is returned by SimDriver.Connect for scripted failures.
var ErrAssociationFailed = errors.New("association failed")

// SimDriver is an in-memory Driver.
type SimDriver struct {
	mu sync.Mutex

	// StationAddr is assigned when Connect succeeds.
	StationAddr netip.Addr
	// ConnectDelay simulates association time.
	ConnectDelay time.Duration

	mode        Mode
	creds       Credentials
	ap          APConfig
	started     bool
	linkUp      bool
	addr        netip.Addr
	failures    []error
	disconnects chan struct{}

	connects int
	stops    int
}

// NewSimDriver returns a SimDriver that hands out 192.168.1.50 in station mode.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		StationAddr: netip.MustParseAddr("192.168.1.50"),
		disconnects: make(chan struct{}, 1),
	}
}

func (d *SimDriver) StartStation(ctx context.Context, creds Credentials) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = ModeStation
	d.creds = creds
	d.started = true
	return nil
}

func (d *SimDriver) StartAccessPoint(ctx context.Context, cfg APConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = ModeAccessPoint
	d.ap = cfg
	d.started = true
	d.linkUp = true
	d.addr = cfg.Address.Addr()
	return nil
}

func (d *SimDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	delay := d.ConnectDelay
	d.connects++
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return errors.New("radio not started")
	}
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return err
	}
	// Drain a disconnect injected before this association.
	select {
	case <-d.disconnects:
	default:
	}
	d.linkUp = true
	d.addr = d.StationAddr
	return nil
}

func (d *SimDriver) WaitDisconnect(ctx context.Context) error {
	select {
	case <-d.disconnects:
		d.mu.Lock()
		d.linkUp = false
		d.addr = netip.Addr{}
		d.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *SimDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	d.linkUp = false
	d.addr = netip.Addr{}
	d.stops++
	return nil
}

func (d *SimDriver) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *SimDriver) LinkUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.linkUp
}

func (d *SimDriver) Address() (netip.Addr, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr, d.linkUp && d.addr.IsValid()
}

// FailConnects makes the next n Connect calls fail with err.
func (d *SimDriver) FailConnects(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < n; i++ {
		d.failures = append(d.failures, err)
	}
}

// Disconnect drops the link as if the access point went away.
func (d *SimDriver) Disconnect() {
	d.mu.Lock()
	d.linkUp = false
	d.addr = netip.Addr{}
	d.mu.Unlock()
	select {
	case d.disconnects <- struct{}{}:
	default:
	}
}

// Credentials returns the credentials passed to the last StartStation.
func (d *SimDriver) Credentials() Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.creds
}

// ConnectCount returns how many times Connect was called.
func (d *SimDriver) ConnectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// StopCount returns how many times Stop was called.
func (d *SimDriver) StopCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stops
}
