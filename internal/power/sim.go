package power

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkclock/inkclock/internal/radio"
)

// SimPlatform records sleeps and resets instead of performing them.
type SimPlatform struct {
	// RadioState, when set, is sampled at each sleep.
	RadioState func() radio.State
	// SleepErr is returned by DeepSleep when set.
	SleepErr error

	mu            sync.Mutex
	sleeps        []WakeConfig
	statesAtSleep []radio.State
	resets        int
	slept         chan struct{}
}

// NewSimPlatform returns a SimPlatform.
func NewSimPlatform() *SimPlatform {
	return &SimPlatform{slept: make(chan struct{}, 16)}
}

// DeepSleep records wake and returns immediately.
func (p *SimPlatform) DeepSleep(ctx context.Context, wake WakeConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.SleepErr != nil {
		return p.SleepErr
	}
	p.sleeps = append(p.sleeps, wake)
	state := radio.StateStopped
	if p.RadioState != nil {
		state = p.RadioState()
	}
	p.statesAtSleep = append(p.statesAtSleep, state)
	select {
	case p.slept <- struct{}{}:
	default:
	}
	return nil
}

// Reset counts the call.
func (p *SimPlatform) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	return nil
}

// Sleeps returns the wake configs of every recorded sleep.
func (p *SimPlatform) Sleeps() []WakeConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WakeConfig(nil), p.sleeps...)
}

// StatesAtSleep returns the radio state sampled at each sleep.
func (p *SimPlatform) StatesAtSleep() []radio.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]radio.State(nil), p.statesAtSleep...)
}

// Resets returns how many times Reset was called.
func (p *SimPlatform) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// Slept signals once per recorded sleep.
func (p *SimPlatform) Slept() <-chan struct{} {
	return p.slept
}

// SimRTC is an RTC advanced by hand.
type SimRTC struct {
	// Boot is returned by BootID.
	Boot uuid.UUID

	mu      sync.Mutex
	elapsed time.Duration
}

// BootID returns Boot.
func (r *SimRTC) BootID() uuid.UUID {
	return r.Boot
}

// Elapsed returns the current reading.
func (r *SimRTC) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

// Advance moves the reading forward by d.
func (r *SimRTC) Advance(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.elapsed += d
}
