//go:build linux

package radio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mdlayher/wifi"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
)

const linkPollInterval = 500 * time.Millisecond

// LinuxDriver drives a wireless interface on a Linux board. Station mode
// uses nl80211; the DHCP client for the station interface is expected to be
// run by the OS (dhcpcd, systemd-networkd).
type LinuxDriver struct {
	iface   string
	runDir  string
	command func(ctx context.Context, name string, args ...string) *exec.Cmd

	mu      sync.Mutex
	client  *wifi.Client
	creds   Credentials
	mode    Mode
	started bool
	hostapd *exec.Cmd
	apAddr  netip.Prefix
}

// NewLinuxDriver opens an nl80211 client for iface. runDir holds the
// generated hostapd configuration.
func NewLinuxDriver(iface, runDir string) (*LinuxDriver, error) {
	c, err := wifi.New()
	if err != nil {
		return nil, fmt.Errorf("open wifi client: %w", err)
	}
	return &LinuxDriver{
		iface:   iface,
		runDir:  runDir,
		command: exec.CommandContext,
		client:  c,
	}, nil
}

// Close releases the nl80211 socket.
func (d *LinuxDriver) Close() error {
	return d.client.Close()
}

func (d *LinuxDriver) wifiInterface() (*wifi.Interface, error) {
	ifaces, err := d.client.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate wifi interfaces: %w", err)
	}
	for _, ifi := range ifaces {
		if ifi.Name == d.iface {
			return ifi, nil
		}
	}
	return nil, fmt.Errorf("wifi interface %s not found", d.iface)
}

func (d *LinuxDriver) run(ctx context.Context, name string, args ...string) error {
	out, err := d.command(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %v: %w: %s", name, args, err, out)
	}
	return nil
}

func (d *LinuxDriver) StartStation(ctx context.Context, creds Credentials) error {
	if err := d.run(ctx, "ip", "link", "set", d.iface, "up"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = creds
	d.mode = ModeStation
	d.started = true
	return nil
}

func (d *LinuxDriver) StartAccessPoint(ctx context.Context, cfg APConfig) error {
	if err := os.MkdirAll(d.runDir, 0700); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	confPath := filepath.Join(d.runDir, "hostapd.conf")
	if err := os.WriteFile(confPath, []byte(hostapdConfig(d.iface, cfg)), 0600); err != nil {
		return fmt.Errorf("write hostapd config: %w", err)
	}

	if err := d.run(ctx, "ip", "addr", "flush", "dev", d.iface); err != nil {
		return err
	}
	if err := d.run(ctx, "ip", "addr", "add", cfg.Address.String(), "dev", d.iface); err != nil {
		return err
	}
	if err := d.run(ctx, "ip", "link", "set", d.iface, "up"); err != nil {
		return err
	}

	// hostapd outlives the start context; it is killed by Stop.
	cmd := d.command(context.Background(), "hostapd", confPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start hostapd: %w", err)
	}
	go func() {
		err := cmd.Wait()
		logging.Info("hostapd exited", zap.Error(err))
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.hostapd = cmd
	d.apAddr = cfg.Address
	d.mode = ModeAccessPoint
	d.started = true
	return nil
}

func hostapdConfig(iface string, cfg APConfig) string {
	conf := fmt.Sprintf("interface=%s\ndriver=nl80211\nssid=%s\nhw_mode=g\nchannel=6\n", iface, cfg.SSID)
	if cfg.Passphrase != "" {
		conf += fmt.Sprintf("wpa=2\nwpa_key_mgmt=WPA-PSK\nrsn_pairwise=CCMP\nwpa_passphrase=%s\n", cfg.Passphrase)
	}
	return conf
}

func (d *LinuxDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	creds := d.creds
	d.mu.Unlock()

	ifi, err := d.wifiInterface()
	if err != nil {
		return err
	}

	if creds.Password == "" {
		err = d.client.Connect(ifi, creds.SSID)
	} else {
		err = d.client.ConnectWPAPSK(ifi, creds.SSID, creds.Password)
	}
	if err != nil {
		return fmt.Errorf("associate with %q: %w", creds.SSID, err)
	}

	ticker := time.NewTicker(linkPollInterval)
	defer ticker.Stop()
	for {
		if d.associated() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *LinuxDriver) associated() bool {
	ifi, err := d.wifiInterface()
	if err != nil {
		return false
	}
	bss, err := d.client.BSS(ifi)
	if err != nil {
		return false
	}
	return bss.Status == wifi.BSSStatusAssociated
}

func (d *LinuxDriver) WaitDisconnect(ctx context.Context) error {
	ticker := time.NewTicker(linkPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !d.associated() {
				return nil
			}
		}
	}
}

func (d *LinuxDriver) Stop(ctx context.Context) error {
	d.mu.Lock()
	hostapd := d.hostapd
	mode := d.mode
	d.hostapd = nil
	d.started = false
	d.mu.Unlock()

	var errs []error
	if hostapd != nil && hostapd.Process != nil {
		if err := hostapd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill hostapd: %w", err))
		}
	}
	if mode == ModeStation {
		if ifi, err := d.wifiInterface(); err == nil {
			if err := d.client.Disconnect(ifi); err != nil {
				logging.Debug("nl80211 disconnect failed", zap.Error(err))
			}
		}
	}
	if err := d.run(ctx, "ip", "link", "set", d.iface, "down"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *LinuxDriver) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

func (d *LinuxDriver) LinkUp() bool {
	d.mu.Lock()
	mode, started := d.mode, d.started
	d.mu.Unlock()
	if !started {
		return false
	}
	if mode == ModeAccessPoint {
		return true
	}
	return d.associated()
}

func (d *LinuxDriver) Address() (netip.Addr, bool) {
	ifi, err := net.InterfaceByName(d.iface)
	if err != nil {
		return netip.Addr{}, false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return netip.Addr{}, false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			addr, _ := netip.AddrFromSlice(v4)
			return addr, true
		}
	}
	return netip.Addr{}, false
}
