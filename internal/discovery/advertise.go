package discovery

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/version"
)

// AdvertiseOptions describes the provisioning page to announce.
type AdvertiseOptions struct {
	// Instance defaults to InstancePrefix.
	Instance string
	// Name is the device name published in the TXT record.
	Name string
	Port int
	// Address is the address the page is reachable on.
	Address netip.Addr
	// Interface limits announcements to one network interface. Empty means
	// every multicast-capable interface.
	Interface string
}

// Advertisement is a running mDNS announcement.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise announces the provisioning page until Shutdown is called.
func Advertise(opts AdvertiseOptions) (*Advertisement, error) {
	instance := opts.Instance
	if instance == "" {
		instance = InstancePrefix
	}
	if !opts.Address.IsValid() {
		return nil, fmt.Errorf("advertise %s: no address", instance)
	}

	var ifaces []net.Interface
	if opts.Interface != "" {
		iface, err := net.InterfaceByName(opts.Interface)
		if err != nil {
			return nil, fmt.Errorf("advertise %s: %w", instance, err)
		}
		ifaces = []net.Interface{*iface}
	}

	host := opts.Name
	if host == "" {
		host = instance
	}
	txt := []string{
		"name=" + opts.Name,
		"path=/config",
		"vers=" + version.Version,
	}

	server, err := zeroconf.RegisterProxy(instance, ServiceType, ServiceDomain, opts.Port,
		host, []string{opts.Address.String()}, txt, ifaces)
	if err != nil {
		return nil, fmt.Errorf("advertise %s: %w", instance, err)
	}

	logging.Info("Advertising provisioning page",
		zap.String("instance", instance),
		zap.String("address", opts.Address.String()),
		zap.Int("port", opts.Port),
	)
	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the announcement.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	logging.Debug("mDNS advertisement withdrawn")
}
