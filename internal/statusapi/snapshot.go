// Package statusapi serves the daemon's state to local tools.
//
// Routes:
//
//	GET /status   JSON Snapshot
//	GET /metrics  Prometheus text format
//	GET /ws       websocket stream of Snapshot, pushed on every connection
//	              state change and at least every PushInterval
//
// The API listens on loopback by default. The Client type is the matching
// reader used by inkclock-cfg.
package statusapi

import (
	"net/netip"
	"time"

	"github.com/inkclock/inkclock/internal/clock"
	"github.com/inkclock/inkclock/internal/radio"
	"github.com/inkclock/inkclock/internal/version"
	"github.com/inkclock/inkclock/internal/wifi"
)

// Snapshot is the JSON body of /status and of every /ws message.
type Snapshot struct {
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Mode    string       `json:"mode"`
	State   string       `json:"state"`
	LinkUp  bool         `json:"link_up"`
	Address string       `json:"address,omitempty"`
	Broker  BrokerStatus `json:"broker"`
	Clock   ClockStatus  `json:"clock"`
	TakenAt time.Time    `json:"taken_at"`
}

// BrokerStatus mirrors wifi.Snapshot.
type BrokerStatus struct {
	Held        bool      `json:"held"`
	HolderID    string    `json:"holder_id,omitempty"`
	HeldSince   time.Time `json:"held_since,omitempty"`
	IdleSeconds float64   `json:"idle_seconds"`
	// IdleLimitSeconds is the idle time after which the radio is stopped.
	IdleLimitSeconds float64 `json:"idle_limit_seconds,omitempty"`
}

// ClockStatus describes the wall clock.
type ClockStatus struct {
	Now      time.Time `json:"now"`
	Synced   bool      `json:"synced"`
	LastSync time.Time `json:"last_sync,omitempty"`
}

// Connection is the part of wifi.Manager the API reads.
type Connection interface {
	State() radio.State
	Mode() radio.Mode
	LinkUp() bool
	Address() (netip.Addr, bool)
	Subscribe() (<-chan radio.State, func())
}

// BrokerView is the part of wifi.Broker the API reads.
type BrokerView interface {
	Snapshot() wifi.Snapshot
}

// Sources are the components a Snapshot is taken from. Nil fields are
// left out of the snapshot.
type Sources struct {
	Name        string
	Connection  Connection
	Broker      BrokerView
	IdleTimeout time.Duration
	Clock       *clock.Clock
}

// Collect takes a Snapshot.
func (s Sources) Collect() Snapshot {
	snap := Snapshot{
		Name:    s.Name,
		Version: version.Version,
		State:   radio.StateStopped.String(),
		TakenAt: time.Now(),
	}

	if s.Connection != nil {
		snap.Mode = s.Connection.Mode().String()
		snap.State = s.Connection.State().String()
		snap.LinkUp = s.Connection.LinkUp()
		if addr, ok := s.Connection.Address(); ok {
			snap.Address = addr.String()
		}
	}

	if s.Broker != nil {
		b := s.Broker.Snapshot()
		snap.Broker = BrokerStatus{
			Held:             b.Held,
			HolderID:         b.HolderID,
			HeldSince:        b.HeldSince,
			IdleSeconds:      b.IdleFor.Seconds(),
			IdleLimitSeconds: s.IdleTimeout.Seconds(),
		}
	}

	if s.Clock != nil {
		snap.Clock = ClockStatus{
			Now:      s.Clock.Now(),
			Synced:   s.Clock.Synced(),
			LastSync: s.Clock.LastSync(),
		}
	}

	return snap
}
