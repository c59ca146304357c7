// Package idle tracks when the network was last used.
package idle

import (
	"sync"
	"time"
)

// Clock records the last network use. The zero value is not usable; call New.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// New returns a Clock whose last activity is now.
func New() *Clock {
	return NewWithNow(time.Now)
}

// NewWithNow returns a Clock reading time from now.
func NewWithNow(now func() time.Time) *Clock {
	return &Clock{last: now(), now: now}
}

// Touch marks the network as used at the current instant.
func (c *Clock) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.now()
}

// LastActive returns the instant of the last Touch.
func (c *Clock) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// IdleFor returns how long ago the last Touch happened.
func (c *Clock) IdleFor() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.last)
}
