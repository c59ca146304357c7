package discovery

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

func entry(instance string) *zeroconf.ServiceEntry {
	return &zeroconf.ServiceEntry{
		ServiceRecord: zeroconf.ServiceRecord{Instance: instance},
		HostName:      "kitchen.local.",
	}
}

func TestParseServiceEntry(t *testing.T) {
	tests := []struct {
		name     string
		entry    func() *zeroconf.ServiceEntry
		wantNil  bool
		wantIP   string
		wantPort int
		wantName string
	}{
		{
			name: "setup portal with IPv4",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("inkclock-setup")
				e.Port = 8080
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.2.1")}
				e.Text = []string{"name=kitchen", "path=/config"}
				return e
			},
			wantIP:   "192.168.2.1",
			wantPort: 8080,
			wantName: "kitchen",
		},
		{
			name: "renamed after conflict",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("inkclock-setup (2)")
				e.Port = 8080
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.2.1")}
				return e
			},
			wantIP:   "192.168.2.1",
			wantPort: 8080,
		},
		{
			name: "no port defaults",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("inkclock-setup")
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.2.1")}
				return e
			},
			wantIP:   "192.168.2.1",
			wantPort: DefaultPort,
		},
		{
			name: "IPv6 only",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("inkclock-setup")
				e.Port = 8080
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}
				return e
			},
			wantIP:   "fe80::1",
			wantPort: 8080,
		},
		{
			name: "prefers IPv4",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("inkclock-setup")
				e.Port = 8080
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.2.1")}
				e.AddrIPv6 = []net.IP{net.ParseIP("fe80::2")}
				return e
			},
			wantIP:   "192.168.2.1",
			wantPort: 8080,
		},
		{
			name: "other http service",
			entry: func() *zeroconf.ServiceEntry {
				e := entry("Living Room Printer")
				e.Port = 80
				e.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.9")}
				return e
			},
			wantNil: true,
		},
		{
			name: "no address",
			entry: func() *zeroconf.ServiceEntry {
				return entry("inkclock-setup")
			},
			wantNil: true,
		},
		{
			name:    "nil entry",
			entry:   func() *zeroconf.ServiceEntry { return nil },
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device := parseServiceEntry(tt.entry())

			if tt.wantNil {
				if device != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", device)
				}
				return
			}
			if device == nil {
				t.Fatal("parseServiceEntry() = nil, want device")
			}
			if device.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", device.IP, tt.wantIP)
			}
			if device.Port != tt.wantPort {
				t.Errorf("Port = %v, want %v", device.Port, tt.wantPort)
			}
			if device.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", device.Name, tt.wantName)
			}
			if time.Since(device.DiscoveredAt) > time.Second {
				t.Errorf("DiscoveredAt is not recent: %v", device.DiscoveredAt)
			}
		})
	}
}

func TestParseServiceEntryMetadata(t *testing.T) {
	e := entry("inkclock-setup")
	e.AddrIPv4 = []net.IP{net.ParseIP("192.168.2.1")}
	e.Text = []string{"name=hall", "path=/config", "flag", "vers=1.2.0"}

	device := parseServiceEntry(e)
	if device == nil {
		t.Fatal("parseServiceEntry() = nil, want device")
	}

	want := map[string]string{
		"name": "hall",
		"path": "/config",
		"flag": "",
		"vers": "1.2.0",
	}
	if len(device.Metadata) != len(want) {
		t.Errorf("Metadata has %d entries, want %d", len(device.Metadata), len(want))
	}
	for key, value := range want {
		if got, ok := device.Metadata[key]; !ok || got != value {
			t.Errorf("Metadata[%q] = %q, %v, want %q", key, got, ok, value)
		}
	}
}

func TestNewScanner(t *testing.T) {
	scanner := NewScanner()
	if scanner.Timeout != DefaultScanTimeout {
		t.Errorf("Timeout = %v, want %v", scanner.Timeout, DefaultScanTimeout)
	}
}

func TestAdvertiseRequiresAddress(t *testing.T) {
	if _, err := Advertise(AdvertiseOptions{Port: 8080}); err == nil {
		t.Error("Advertise() without address should fail")
	}
	if _, err := Advertise(AdvertiseOptions{
		Port:      8080,
		Address:   netip.MustParseAddr("192.168.2.1"),
		Interface: "no-such-iface0",
	}); err == nil {
		t.Error("Advertise() on a missing interface should fail")
	}
}

func TestAdvertisementShutdownNil(t *testing.T) {
	var adv *Advertisement
	adv.Shutdown()
}
