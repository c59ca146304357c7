// Package discovery finds inkclock devices over multicast DNS.
//
// While a clock runs its setup access point it advertises the provisioning
// page as an "_http._tcp" service whose instance name starts with
// "inkclock-setup". The configuration tool browses for that service type and
// keeps only matching instances.
//
// # Advertising
//
//	adv, err := discovery.Advertise(discovery.AdvertiseOptions{
//	    Name:      "kitchen",
//	    Port:      8080,
//	    Address:   netip.MustParseAddr("192.168.2.1"),
//	    Interface: "wlan0",
//	})
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
// # Scanning
//
//	devices, err := discovery.NewScanner().ScanForDevices(ctx)
//	for _, device := range devices {
//	    fmt.Println(device.BaseURL())
//	}
//
// # TXT Records
//
// Each advertisement carries:
//   - name: the device name from the daemon config
//   - path: the setup page path (/config)
//   - vers: the daemon version
//
// # Network Requirements
//
// mDNS needs multicast on the interface and UDP port 5353 open. Phones joined
// to the setup network usually reach the page through the captive portal
// instead; mDNS serves the configuration tool on a laptop.
package discovery
