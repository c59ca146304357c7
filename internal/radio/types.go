package radio

import (
	"context"
	"fmt"
	"net/netip"
)

// Mode is the radio operating mode, chosen once at boot.
type Mode int

const (
	// ModeStation joins an existing network with stored credentials.
	ModeStation Mode = iota
	// ModeAccessPoint hosts the provisioning network.
	ModeAccessPoint
)

func (m Mode) String() string {
	switch m {
	case ModeStation:
		return "station"
	case ModeAccessPoint:
		return "access-point"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the connection state of the radio.
type State int

const (
	StateStopped State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	StateStopped:      {StateConnecting},
	StateConnecting:   {StateConnected, StateConnecting, StateStopped},
	StateConnected:    {StateDisconnected, StateStopped},
	StateDisconnected: {StateConnecting, StateStopped},
}

// ValidTransition reports whether from -> to is an edge of the state graph.
func ValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

const (
	MaxSSIDLen     = 32
	MaxPasswordLen = 32
)

// Credentials are the station credentials held by the credential store.
// Provisioned is false until a user has submitted the portal form.
type Credentials struct {
	SSID        string
	Password    string
	Provisioned bool
}

// Validate checks field bounds. An empty password is allowed for open networks.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return fmt.Errorf("ssid is empty")
	}
	if len(c.SSID) > MaxSSIDLen {
		return fmt.Errorf("ssid is %d bytes, max %d", len(c.SSID), MaxSSIDLen)
	}
	if len(c.Password) > MaxPasswordLen {
		return fmt.Errorf("password is %d bytes, max %d", len(c.Password), MaxPasswordLen)
	}
	return nil
}

// APConfig describes the provisioning access point.
type APConfig struct {
	SSID       string
	Passphrase string       // empty means open authentication
	Address    netip.Prefix // gateway address and subnet
}

// Driver is the physical radio. Implementations must be safe for concurrent
// use; the connection manager calls the blocking methods from its own
// goroutine while other components poll Started, LinkUp and Address.
type Driver interface {
	// StartStation configures station mode with creds and powers the radio.
	StartStation(ctx context.Context, creds Credentials) error
	// StartAccessPoint brings up the provisioning network.
	StartAccessPoint(ctx context.Context, cfg APConfig) error
	// Connect associates with the configured network and returns once
	// associated or failed.
	Connect(ctx context.Context) error
	// WaitDisconnect blocks until the association is lost.
	WaitDisconnect(ctx context.Context) error
	// Stop powers the radio down.
	Stop(ctx context.Context) error

	Started() bool
	LinkUp() bool
	// Address returns the interface's IPv4 address once configured.
	Address() (netip.Addr, bool)
}
