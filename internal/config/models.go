package config

import (
	"fmt"
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire device configuration file.
type Config struct {
	Version     int         `yaml:"version"`
	Device      Device      `yaml:"device"`
	AccessPoint AccessPoint `yaml:"access_point"`
	Station     Station     `yaml:"station"`
	Broker      Broker      `yaml:"broker"`
	Sleep       Sleep       `yaml:"sleep"`
	Portal      Portal      `yaml:"portal"`
	Status      Status      `yaml:"status"`
	Logging     Logging     `yaml:"logging"`
	TimeSync    TimeSync    `yaml:"time_sync"`
}

// Device identifies the clock and where it keeps persistent state.
type Device struct {
	Name      string `yaml:"name"`      // Shown in the status box and mDNS TXT record
	Interface string `yaml:"interface"` // Wireless interface, e.g. wlan0
	DataDir   string `yaml:"data_dir"`  // Credential store and retained region live here
}

// AccessPoint configures the provisioning network.
type AccessPoint struct {
	SSID          string `yaml:"ssid"`
	Passphrase    string `yaml:"passphrase,omitempty"` // Empty means open authentication
	Address       string `yaml:"address"`              // Gateway address, also the DNS answer
	ClientAddress string `yaml:"client_address"`       // The single address handed out by DHCP
	Netmask       string `yaml:"netmask"`
	LeaseSeconds  uint32 `yaml:"lease_seconds"`
	DNSTTL        uint32 `yaml:"dns_ttl"`
}

// Station configures association retry behaviour in station mode.
type Station struct {
	RetryBackoff    Duration `yaml:"retry_backoff"`    // Pause after a failed association
	DisconnectPause Duration `yaml:"disconnect_pause"` // Pause after losing the link
}

// Broker configures the network access gate.
type Broker struct {
	AcquireTimeout   Duration `yaml:"acquire_timeout"`
	IdleTimeout      Duration `yaml:"idle_timeout"`
	WatchdogInterval Duration `yaml:"watchdog_interval"`
}

// WakePin is a GPIO line that wakes the device from sleep.
type WakePin struct {
	Name  string `yaml:"name"`  // periph.io pin name, e.g. GPIO5
	Level string `yaml:"level"` // "low" or "high"
}

// Sleep configures the sleep scheduler.
type Sleep struct {
	IdleThreshold Duration  `yaml:"idle_threshold"`
	Duration      Duration  `yaml:"duration"` // Zero disables the wake timer
	CheckInterval Duration  `yaml:"check_interval"`
	WakePins      []WakePin `yaml:"wake_pins,omitempty"`
	// SuspendCommand is run to suspend the board. Empty means the daemon
	// idles in-process until the timer fires.
	SuspendCommand []string `yaml:"suspend_command,omitempty"`
}

// Portal configures the captive portal listeners.
type Portal struct {
	HTTPPort  int  `yaml:"http_port"`
	DHCPPort  int  `yaml:"dhcp_port"`
	DNSPort   int  `yaml:"dns_port"`
	Advertise bool `yaml:"advertise"` // Register the portal over mDNS
}

// Status configures the local status API.
type Status struct {
	Listen string `yaml:"listen"` // Empty disables the API
}

// Logging configures the zap logger.
type Logging struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// TimeSync configures the wall clock sync worker.
type TimeSync struct {
	URL      string   `yaml:"url"`
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// Duration is a time.Duration that reads and writes as "30s" in YAML.
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration in code.
func D(d time.Duration) Duration {
	return Duration{Duration: d}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Default returns the configuration the firmware ships with.
func Default() *Config {
	return &Config{
		Version: 1,
		Device: Device{
			Name:      "inkclock",
			Interface: "wlan0",
			DataDir:   "/var/lib/inkclock",
		},
		AccessPoint: AccessPoint{
			SSID:          "inkclock-setup",
			Address:       "192.168.2.1",
			ClientAddress: "192.168.2.2",
			Netmask:       "255.255.255.0",
			LeaseSeconds:  7200,
			DNSTTL:        60,
		},
		Station: Station{
			RetryBackoff:    D(5 * time.Second),
			DisconnectPause: D(time.Second),
		},
		Broker: Broker{
			AcquireTimeout:   D(10 * time.Second),
			IdleTimeout:      D(30 * time.Second),
			WatchdogInterval: D(3 * time.Second),
		},
		Sleep: Sleep{
			IdleThreshold: D(2 * time.Minute),
			Duration:      D(10 * time.Minute),
			CheckInterval: D(5 * time.Second),
			WakePins: []WakePin{
				{Name: "GPIO5", Level: "low"},
				{Name: "GPIO1", Level: "low"},
				{Name: "GPIO0", Level: "low"},
			},
		},
		Portal: Portal{
			HTTPPort:  8080,
			DHCPPort:  67,
			DNSPort:   53,
			Advertise: true,
		},
		Status: Status{
			Listen: "127.0.0.1:8090",
		},
		TimeSync: TimeSync{
			URL:      "http://time.cloudflare.com/",
			Interval: D(time.Hour),
			Timeout:  D(5 * time.Second),
		},
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}
	if c.Device.DataDir == "" {
		return fmt.Errorf("device.data_dir must be set")
	}

	if l := len(c.AccessPoint.SSID); l == 0 || l > 32 {
		return fmt.Errorf("access_point.ssid must be 1-32 bytes, got %d", l)
	}
	if l := len(c.AccessPoint.Passphrase); l != 0 && (l < 8 || l > 63) {
		return fmt.Errorf("access_point.passphrase must be empty or 8-63 bytes, got %d", l)
	}
	gateway, err := netip.ParseAddr(c.AccessPoint.Address)
	if err != nil || !gateway.Is4() {
		return fmt.Errorf("access_point.address %q is not an IPv4 address", c.AccessPoint.Address)
	}
	client, err := netip.ParseAddr(c.AccessPoint.ClientAddress)
	if err != nil || !client.Is4() {
		return fmt.Errorf("access_point.client_address %q is not an IPv4 address", c.AccessPoint.ClientAddress)
	}
	if client == gateway {
		return fmt.Errorf("access_point.client_address must differ from access_point.address")
	}
	if _, err := c.AccessPoint.Prefix(); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value Duration
	}{
		{"station.retry_backoff", c.Station.RetryBackoff},
		{"station.disconnect_pause", c.Station.DisconnectPause},
		{"broker.acquire_timeout", c.Broker.AcquireTimeout},
		{"broker.idle_timeout", c.Broker.IdleTimeout},
		{"broker.watchdog_interval", c.Broker.WatchdogInterval},
		{"sleep.idle_threshold", c.Sleep.IdleThreshold},
		{"sleep.check_interval", c.Sleep.CheckInterval},
		{"time_sync.interval", c.TimeSync.Interval},
		{"time_sync.timeout", c.TimeSync.Timeout},
	}
	for _, d := range durations {
		if d.value.Duration <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}
	if c.Sleep.Duration.Duration < 0 {
		return fmt.Errorf("sleep.duration must not be negative")
	}

	for _, pin := range c.Sleep.WakePins {
		if pin.Name == "" {
			return fmt.Errorf("sleep.wake_pins: pin name must be set")
		}
		if pin.Level != "low" && pin.Level != "high" {
			return fmt.Errorf("sleep.wake_pins: pin %s level must be low or high, got %q", pin.Name, pin.Level)
		}
	}

	ports := map[string]int{
		"portal.http_port": c.Portal.HTTPPort,
		"portal.dhcp_port": c.Portal.DHCPPort,
		"portal.dns_port":  c.Portal.DNSPort,
	}
	for name, port := range ports {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}

	if c.Status.Listen != "" {
		if _, err := netip.ParseAddrPort(c.Status.Listen); err != nil {
			return fmt.Errorf("status.listen: %w", err)
		}
	}

	return nil
}

// Prefix returns the gateway address with the configured netmask applied.
func (a AccessPoint) Prefix() (netip.Prefix, error) {
	mask, err := netip.ParseAddr(a.Netmask)
	if err != nil || !mask.Is4() {
		return netip.Prefix{}, fmt.Errorf("access_point.netmask %q is not an IPv4 mask", a.Netmask)
	}
	bits, ok := maskBits(mask.As4())
	if !ok {
		return netip.Prefix{}, fmt.Errorf("access_point.netmask %q is not contiguous", a.Netmask)
	}
	gateway, err := netip.ParseAddr(a.Address)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("access_point.address: %w", err)
	}
	return netip.PrefixFrom(gateway, bits), nil
}

func maskBits(m [4]byte) (int, bool) {
	v := uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
	bits := 0
	for v&0x80000000 != 0 {
		bits++
		v <<= 1
	}
	return bits, v == 0
}
