package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/captive"
	"github.com/inkclock/inkclock/internal/clock"
	"github.com/inkclock/inkclock/internal/config"
	"github.com/inkclock/inkclock/internal/discovery"
	"github.com/inkclock/inkclock/internal/idle"
	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/power"
	"github.com/inkclock/inkclock/internal/provision"
	"github.com/inkclock/inkclock/internal/radio"
	"github.com/inkclock/inkclock/internal/retained"
	"github.com/inkclock/inkclock/internal/statusapi"
	"github.com/inkclock/inkclock/internal/storage"
	"github.com/inkclock/inkclock/internal/wifi"
)

const (
	credentialsFile = "credentials.bin"
	retainedFile    = "retained.bin"
)

// RetainedStore is the retained region as the app uses it.
type RetainedStore interface {
	Load() (retained.Region, error)
	Store(r retained.Region) error
	ClearSleep() error
}

// Deps are the collaborators that differ between hardware, simulation and
// tests. Nil fields get the hardware default.
type Deps struct {
	Driver   radio.Driver
	Platform power.Platform
	RTC      power.RTC
	Blob     storage.BlobStore
	Retained RetainedStore
	// TimeSource defaults to an HTTPDateSource on time_sync.url.
	TimeSource clock.Source
	Pins       []power.WakePin
	Metrics    *metrics.Metrics
	// Now drives the wall and idle clocks.
	Now func() time.Time
	// BindHost is prepended to every portal listen address. Empty binds
	// all interfaces.
	BindHost string
}

// App holds every component of the daemon.
type App struct {
	cfg  *config.Config
	deps Deps
	log  *zap.Logger

	Metrics     *metrics.Metrics
	Clock       *clock.Clock
	Idle        *idle.Clock
	Credentials *storage.CredentialStore
	Retained    RetainedStore
	Manager     *wifi.Manager
	Broker      *wifi.Broker
	Scheduler   *power.Scheduler
	Sync        *clock.SyncWorker
	Status      *statusapi.Server

	page atomic.Uint32

	mu         sync.Mutex
	mode       radio.Mode
	portalAddr net.Addr
	statusAddr net.Addr
	ready      chan struct{}
}

// New builds the component graph. Nothing is started until Boot.
func New(cfg *config.Config, deps Deps) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if deps.Driver == nil {
		return nil, errors.New("app: no radio driver")
	}
	if deps.Platform == nil {
		deps.Platform = &power.ProcessPlatform{SuspendCommand: cfg.Sleep.SuspendCommand}
	}
	if deps.RTC == nil {
		deps.RTC = power.BootTimeRTC{}
	}
	if deps.Blob == nil {
		deps.Blob = storage.NewFileBlob(CredentialsPath(cfg))
	}
	if deps.Retained == nil {
		deps.Retained = retained.NewFile(RetainedPath(cfg))
	}
	if deps.TimeSource == nil && cfg.TimeSync.URL != "" {
		deps.TimeSource = &clock.HTTPDateSource{URL: cfg.TimeSync.URL}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	prefix, err := cfg.AccessPoint.Prefix()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:         cfg,
		deps:        deps,
		log:         logging.Named("app"),
		Metrics:     deps.Metrics,
		Clock:       clock.NewWithNow(deps.Now),
		Idle:        idle.NewWithNow(deps.Now),
		Credentials: storage.NewCredentialStore(deps.Blob),
		Retained:    deps.Retained,
		ready:       make(chan struct{}),
	}

	a.Manager = wifi.NewManager(deps.Driver, wifi.ManagerOptions{
		RetryBackoff:    cfg.Station.RetryBackoff.Duration,
		DisconnectPause: cfg.Station.DisconnectPause.Duration,
		AccessPoint: radio.APConfig{
			SSID:       cfg.AccessPoint.SSID,
			Passphrase: cfg.AccessPoint.Passphrase,
			Address:    prefix,
		},
		Metrics: a.Metrics,
	})
	a.Broker = wifi.NewBroker(a.Manager, a.Idle, wifi.BrokerOptions{
		IdleTimeout:      cfg.Broker.IdleTimeout.Duration,
		WatchdogInterval: cfg.Broker.WatchdogInterval.Duration,
		Metrics:          a.Metrics,
	})
	a.Scheduler = &power.Scheduler{
		Broker:        a.Broker,
		Radio:         a.Manager,
		Idle:          a.Idle,
		Retained:      a.Retained,
		Clock:         a.Clock,
		Platform:      deps.Platform,
		RTC:           deps.RTC,
		Pins:          deps.Pins,
		Page:          a.Page,
		Duration:      cfg.Sleep.Duration.Duration,
		IdleThreshold: cfg.Sleep.IdleThreshold.Duration,
		CheckInterval: cfg.Sleep.CheckInterval.Duration,
		Metrics:       a.Metrics,
	}
	if deps.TimeSource != nil {
		a.Sync = &clock.SyncWorker{
			Network:  a.Broker,
			Clock:    a.Clock,
			Source:   deps.TimeSource,
			Interval: cfg.TimeSync.Interval.Duration,
			Timeout:  cfg.TimeSync.Timeout.Duration,
			Metrics:  a.Metrics,
		}
	}
	a.Status = statusapi.NewServer(statusapi.Sources{
		Name:        cfg.Device.Name,
		Connection:  a.Manager,
		Broker:      a.Broker,
		IdleTimeout: cfg.Broker.IdleTimeout.Duration,
		Clock:       a.Clock,
	}, a.Metrics)

	return a, nil
}

// CredentialsPath is where the credential blob lives under data_dir.
func CredentialsPath(cfg *config.Config) string {
	return filepath.Join(cfg.Device.DataDir, credentialsFile)
}

// RetainedPath is where the retained region lives under data_dir.
func RetainedPath(cfg *config.Config) string {
	return filepath.Join(cfg.Device.DataDir, retainedFile)
}

// Page returns the page index the display shows.
func (a *App) Page() uint32 {
	return a.page.Load()
}

// SetPage records the page the display shows so it survives sleep.
func (a *App) SetPage(p uint32) {
	a.page.Store(p)
}

// NoteActivity defers sleep; call it on user input.
func (a *App) NoteActivity() {
	a.Scheduler.NoteActivity()
}

// Ready is closed once Boot has started every component for its mode.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// Mode returns the mode Boot chose.
func (a *App) Mode() radio.Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// PortalAddr returns the setup page listener address in provisioning mode.
func (a *App) PortalAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.portalAddr
}

// StatusAddr returns the status API listener address in station mode.
func (a *App) StatusAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusAddr
}

// Boot runs the daemon until ctx is cancelled.
func (a *App) Boot(ctx context.Context) error {
	creds, err := a.Credentials.Load()
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	a.restoreRetained()

	if !creds.Provisioned {
		return a.runProvisioning(ctx)
	}
	return a.runStation(ctx, creds)
}

// restoreRetained applies the sleep stamp to the wall clock and clears it.
func (a *App) restoreRetained() {
	region, err := a.Retained.Load()
	if err != nil {
		a.log.Warn("Retained region unreadable, starting cold", zap.Error(err))
		return
	}
	a.page.Store(region.PageIndex)

	if !region.Slept() {
		if region.LastSync != 0 {
			a.Clock.RestoreLastSync(time.Unix(int64(region.LastSync), 0))
		}
		return
	}
	power.RestoreWallClock(region, a.deps.RTC, a.Clock)
	if err := a.Retained.ClearSleep(); err != nil {
		a.log.Warn("Failed to clear sleep stamp", zap.Error(err))
	}
}

func (a *App) setMode(mode radio.Mode) {
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
}

func (a *App) listenAddr(port int) string {
	return net.JoinHostPort(a.deps.BindHost, strconv.Itoa(port))
}

func (a *App) runProvisioning(ctx context.Context) error {
	a.setMode(radio.ModeAccessPoint)
	a.log.Info("No credentials stored, starting provisioning network",
		zap.String("ssid", a.cfg.AccessPoint.SSID),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gateway, err := a.Manager.Start(ctx, radio.ModeAccessPoint, nil)
	if err != nil {
		return fmt.Errorf("start access point: %w", err)
	}

	offered, err := netip.ParseAddr(a.cfg.AccessPoint.ClientAddress)
	if err != nil {
		return fmt.Errorf("access_point.client_address: %w", err)
	}
	mask, err := netip.ParseAddr(a.cfg.AccessPoint.Netmask)
	if err != nil {
		return fmt.Errorf("access_point.netmask: %w", err)
	}

	portal := captive.NewService(captive.Config{
		DHCPAddr: a.listenAddr(a.cfg.Portal.DHCPPort),
		DNSAddr:  a.listenAddr(a.cfg.Portal.DNSPort),
		Lease: captive.LeaseResponder{
			ServerIP:     gateway,
			OfferedIP:    offered,
			Netmask:      mask,
			LeaseSeconds: a.cfg.AccessPoint.LeaseSeconds,
		},
		DNS:     captive.HijackResponder{Address: gateway, TTL: a.cfg.AccessPoint.DNSTTL},
		Metrics: a.Metrics,
	}, a.Manager)
	if err := portal.Listen(); err != nil {
		return fmt.Errorf("captive portal: %w", err)
	}

	l, err := net.Listen("tcp", a.listenAddr(a.cfg.Portal.HTTPPort))
	if err != nil {
		return fmt.Errorf("setup page: %w", err)
	}
	setup := &provision.Server{
		Listener: l,
		Store:    a.Credentials,
		Reset:    a.deps.Platform.Reset,
		Metrics:  a.Metrics,
	}

	a.mu.Lock()
	a.portalAddr = l.Addr()
	a.mu.Unlock()

	if a.cfg.Portal.Advertise {
		ad, err := discovery.Advertise(discovery.AdvertiseOptions{
			Name:      a.cfg.Device.Name,
			Port:      a.cfg.Portal.HTTPPort,
			Address:   gateway,
			Interface: a.cfg.Device.Interface,
		})
		if err != nil {
			a.log.Warn("mDNS announcement failed", zap.Error(err))
		}
		defer ad.Shutdown()
	}

	var wg sync.WaitGroup
	errc := make(chan error, 2)
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				errc <- fmt.Errorf("%s: %w", name, err)
				cancel()
			}
		}()
	}
	run("captive portal", portal.Run)
	run("setup page", setup.Serve)

	close(a.ready)
	<-ctx.Done()
	wg.Wait()
	<-a.Manager.Done()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}

func (a *App) runStation(ctx context.Context, creds radio.Credentials) error {
	a.setMode(radio.ModeStation)
	a.log.Info("Credentials stored, joining network", zap.String("ssid", creds.SSID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var statusListener net.Listener
	if a.cfg.Status.Listen != "" {
		l, err := net.Listen("tcp", a.cfg.Status.Listen)
		if err != nil {
			return fmt.Errorf("status api: %w", err)
		}
		statusListener = l
		a.mu.Lock()
		a.statusAddr = l.Addr()
		a.mu.Unlock()
	}

	var wg sync.WaitGroup
	errc := make(chan error, 1)
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() {
		addr, err := a.Manager.Start(ctx, radio.ModeStation, &creds)
		if err != nil {
			if ctx.Err() == nil {
				a.log.Error("Connection manager failed to start", zap.Error(err))
			}
			return
		}
		a.log.Info("Joined network", zap.Stringer("address", addr))
	})
	goRun(func() { a.Broker.RunWatchdog(ctx) })
	goRun(func() { a.Scheduler.Run(ctx) })
	if a.Sync != nil {
		goRun(func() { a.Sync.Run(ctx) })
	}
	if statusListener != nil {
		goRun(func() {
			if err := a.Status.Serve(ctx, statusListener); err != nil {
				errc <- fmt.Errorf("status api: %w", err)
				cancel()
			}
		})
	}

	close(a.ready)
	<-ctx.Done()
	wg.Wait()
	<-a.Manager.Done()

	select {
	case err := <-errc:
		return err
	default:
		return nil
	}
}
