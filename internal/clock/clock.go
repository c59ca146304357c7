// Package clock keeps the wall clock and the worker that syncs it.
//
// The board has no battery-backed real time clock, so wall time is an anchor
// set from a time source plus the monotonic time elapsed since. After a sleep
// cycle the anchor is restored from the retained region before any sync.
package clock

import (
	"sync"
	"time"
)

// Clock is a wall clock anchored on a monotonic reading.
type Clock struct {
	mu       sync.Mutex
	now      func() time.Time
	base     time.Time // monotonic reading when wall was set
	wall     time.Time
	lastSync time.Time
}

// New returns a Clock initialized from the system time.
func New() *Clock {
	return NewWithNow(time.Now)
}

// NewWithNow returns a Clock reading elapsed time from now.
func NewWithNow(now func() time.Time) *Clock {
	t := now()
	return &Clock{now: now, base: t, wall: t}
}

// Set moves the wall clock to t without marking it synced.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.now()
	c.wall = t
}

// Sync moves the wall clock to t and records t as the last sync.
func (c *Clock) Sync(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base = c.now()
	c.wall = t
	c.lastSync = t
}

// RestoreLastSync records when the clock was last synced before a sleep
// cycle, without touching the wall time.
func (c *Clock) RestoreLastSync(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSync = t
}

// Now returns the current wall time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall.Add(c.now().Sub(c.base))
}

// Synced reports whether the clock was ever synced.
func (c *Clock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.lastSync.IsZero()
}

// LastSync returns the wall time of the last sync, zero if never.
func (c *Clock) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// SinceSync returns the wall time elapsed since the last sync. It returns a
// negative duration if the clock was never synced.
func (c *Clock) SinceSync() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastSync.IsZero() {
		return -1
	}
	return c.wall.Add(c.now().Sub(c.base)).Sub(c.lastSync)
}
