package discovery

import (
	"fmt"
	"time"
)

// Device is a clock found on the network.
type Device struct {
	// Instance is the mDNS instance name, e.g. "inkclock-setup".
	Instance string

	// Name is the configured device name from the TXT record.
	Name string

	// Hostname is the mDNS hostname.
	Hostname string

	// IP is the IPv4 address, or IPv6 when no IPv4 address was announced.
	IP string

	// Port is the HTTP port of the provisioning page.
	Port int

	// Metadata holds every TXT record as key/value.
	Metadata map[string]string

	// DiscoveredAt is when the device was discovered.
	DiscoveredAt time.Time
}

// String returns a human-readable description.
func (d *Device) String() string {
	return fmt.Sprintf("inkclock %s (%s) at %s:%d", d.Name, d.Instance, d.IP, d.Port)
}

// BaseURL returns the HTTP base URL of the provisioning page.
func (d *Device) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", d.IP, d.Port)
}

// GetMetadata returns a TXT value, or "" if absent.
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
