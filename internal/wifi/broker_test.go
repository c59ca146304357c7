package wifi

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/inkclock/inkclock/internal/idle"
	"github.com/inkclock/inkclock/internal/radio"
)

func TestBrokerUnavailableWithoutManager(t *testing.T) {
	b := NewBroker(nil, nil, BrokerOptions{})

	_, err := b.Acquire(context.Background(), time.Second)
	if !IsUnavailable(err) {
		t.Errorf("Acquire() error = %v, want Unavailable", err)
	}
	resume, err := b.ForceRelease(context.Background())
	if err != nil {
		t.Errorf("ForceRelease() without manager error = %v", err)
	}
	resume()
}

func TestBrokerAcquireRelease(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if h.LocalAddr.String() != "192.168.1.50" {
		t.Errorf("LocalAddr = %v, want 192.168.1.50", h.LocalAddr)
	}

	snap := b.Snapshot()
	if !snap.Held || snap.HolderID != h.ID.String() {
		t.Errorf("Snapshot() = %+v, want held by %s", snap, h.ID)
	}

	b.Release(h)
	if b.Snapshot().Held {
		t.Error("Snapshot().Held should be false after Release()")
	}
}

func TestBrokerMutualExclusion(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	const workers = 8
	var active, maxActive, completed int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.WithNetwork(context.Background(), 5*time.Second, func(h *Handle) error {
				n := atomic.AddInt32(&active, 1)
				for {
					cur := atomic.LoadInt32(&maxActive)
					if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithNetwork() error = %v", err)
				return
			}
			atomic.AddInt32(&completed, 1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxActive)
	}
	if completed != workers {
		t.Errorf("completed = %d, want %d", completed, workers)
	}
}

func TestBrokerSecondAcquirerTimesOut(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	start := time.Now()
	_, err = b.Acquire(context.Background(), 50*time.Millisecond)
	if !IsTimedOut(err) {
		t.Fatalf("second Acquire() error = %v, want TimedOut", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout took %v, want about 50ms", elapsed)
	}

	b.Release(h)
	h2, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	b.Release(h2)
}

func TestBrokerReleaseIsIdempotent(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	h1, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	b.Release(h1)
	b.Release(h1)

	h2, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	// A stale release must not free someone else's handle.
	b.Release(h1)
	if !b.Snapshot().Held {
		t.Error("stale Release() cleared the current holder")
	}
	b.Release(h2)
	b.Release(nil)
}

func TestBrokerAcquireFromStoppedReconnects(t *testing.T) {
	d := radio.NewSimDriver()
	m, _ := startStation(t, d)
	b := NewBroker(m, nil, BrokerOptions{})

	m.Stop()
	waitFor(t, m, radio.StateStopped)

	h, err := b.Acquire(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("Acquire() from stopped error = %v", err)
	}
	defer b.Release(h)

	if m.State() != radio.StateConnected {
		t.Errorf("State() = %v, want connected", m.State())
	}
	if d.ConnectCount() != 2 {
		t.Errorf("ConnectCount() = %d, want 2", d.ConnectCount())
	}
}

func TestBrokerAcquireTimesOutWhileConnecting(t *testing.T) {
	d := radio.NewSimDriver()
	m, _ := startStation(t, d)
	b := NewBroker(m, nil, BrokerOptions{})

	m.Stop()
	waitFor(t, m, radio.StateStopped)
	d.FailConnects(1000, radio.ErrAssociationFailed)

	_, err := b.Acquire(context.Background(), 100*time.Millisecond)
	if !IsTimedOut(err) {
		t.Fatalf("Acquire() error = %v, want TimedOut", err)
	}
	if !errors.Is(err, ErrTimedOut) {
		t.Error("errors.Is(err, ErrTimedOut) = false")
	}

	// The state was observed leaving Stopped and the flag was not leaked.
	if m.State() == radio.StateStopped {
		t.Errorf("State() = %v, reconnect was not requested", m.State())
	}
	if b.Snapshot().Held {
		t.Error("held flag leaked after timeout")
	}
}

func TestBrokerAcquireCancelled(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Release(h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Acquire(ctx, time.Second)
	var be *BrokerError
	if !errors.As(err, &be) || be.Type != ErrTypeStopped {
		t.Errorf("Acquire() with cancelled ctx error = %v, want Stopped", err)
	}
}

func TestBrokerWatchdogStopsIdleRadio(t *testing.T) {
	now := time.Unix(1700000000, 0)
	var mu sync.Mutex
	clock := idle.NewWithNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, clock, BrokerOptions{IdleTimeout: 30 * time.Second})

	advance(29 * time.Second)
	b.checkIdle()
	if m.State() != radio.StateConnected {
		t.Fatalf("watchdog stopped the radio before the idle timeout")
	}

	advance(2 * time.Second)
	b.checkIdle()
	waitFor(t, m, radio.StateStopped)
}

func TestBrokerWatchdogLoop(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{
		IdleTimeout:      30 * time.Millisecond,
		WatchdogInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.RunWatchdog(ctx)

	waitFor(t, m, radio.StateStopped)
}

func TestBrokerWatchdogReclaimsHeldFlag(t *testing.T) {
	now := time.Unix(1700000000, 0)
	clock := idle.NewWithNow(func() time.Time { return now })

	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, clock, BrokerOptions{IdleTimeout: 30 * time.Second})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(time.Minute)
	b.checkIdle()
	if b.Snapshot().Held {
		t.Error("watchdog should clear the held flag")
	}
	// The reclaimed handle's release is a no-op.
	b.Release(h)
}

func TestBrokerForceReleaseWaitsForHolder(t *testing.T) {
	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, nil, BrokerOptions{})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		resume func()
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resume, err := b.ForceRelease(context.Background())
		done <- result{resume, err}
	}()

	select {
	case <-done:
		t.Fatal("ForceRelease() returned while a handle was held")
	case <-time.After(50 * time.Millisecond):
	}
	if m.State() != radio.StateConnected {
		t.Errorf("radio stopped under a live handle, state %v", m.State())
	}

	b.Release(h)
	var r result
	select {
	case r = <-done:
		if r.err != nil {
			t.Fatalf("ForceRelease() error = %v", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ForceRelease() did not return after release")
	}
	if m.State() != radio.StateStopped {
		t.Errorf("State() = %v after ForceRelease, want stopped", m.State())
	}
	if !b.Snapshot().Held {
		t.Error("ForceRelease() should keep the flag held until resume")
	}

	r.resume()
	if b.Snapshot().Held {
		t.Error("resume left the flag held")
	}
	// A second resume is a no-op.
	r.resume()
}

func TestBrokerForceReleaseHoldsRadioDown(t *testing.T) {
	driver := radio.NewSimDriver()
	m, _ := startStation(t, driver)
	b := NewBroker(m, nil, BrokerOptions{})

	resume, err := b.ForceRelease(context.Background())
	if err != nil {
		t.Fatalf("ForceRelease() error = %v", err)
	}
	connects := driver.ConnectCount()

	_, err = b.Acquire(context.Background(), 100*time.Millisecond)
	if !IsTimedOut(err) {
		t.Fatalf("Acquire() under hold error = %v, want TimedOut", err)
	}

	m.RequestReconnect()
	time.Sleep(50 * time.Millisecond)
	if s := m.State(); s != radio.StateStopped {
		t.Fatalf("State() = %v under hold, want stopped", s)
	}
	if driver.ConnectCount() != connects {
		t.Error("radio reassociated under hold")
	}

	acquired := make(chan error, 1)
	go func() {
		h, err := b.Acquire(context.Background(), 2*time.Second)
		if err == nil {
			b.Release(h)
		}
		acquired <- err
	}()
	time.Sleep(20 * time.Millisecond)
	resume()

	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("Acquire() after resume error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Acquire() did not return after resume")
	}
}

func TestBrokerFailedAcquireKeepsIdleClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1700000000, 0)
	clock := idle.NewWithNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	m, _ := startStation(t, radio.NewSimDriver())
	b := NewBroker(m, clock, BrokerOptions{})

	h, err := b.Acquire(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	advance(5 * time.Minute)

	_, err = b.Acquire(context.Background(), 20*time.Millisecond)
	if !IsTimedOut(err) {
		t.Fatalf("second Acquire() error = %v, want TimedOut", err)
	}
	if idleFor := clock.IdleFor(); idleFor != 5*time.Minute {
		t.Errorf("IdleFor() = %v after a failed acquire, want 5m", idleFor)
	}

	b.Release(h)
	if idleFor := clock.IdleFor(); idleFor != 0 {
		t.Errorf("IdleFor() = %v after release, want 0", idleFor)
	}
}
