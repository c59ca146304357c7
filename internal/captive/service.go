package captive

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
)

const maxDatagram = 1500

// Gate reports whether the radio is hosting the provisioning network.
type Gate interface {
	Mode() radio.Mode
	LinkUp() bool
}

// Config configures a Service.
type Config struct {
	DHCPAddr string // listen address, normally ":67"
	DNSAddr  string // listen address, normally ":53"
	// BroadcastAddr receives DHCP replies, normally "255.255.255.255:68".
	BroadcastAddr string
	Lease         LeaseResponder
	DNS           HijackResponder
	Metrics       *metrics.Metrics
}

// Service runs the DHCP and DNS responders.
type Service struct {
	cfg  Config
	gate Gate
	log  *zap.Logger

	mu       sync.Mutex
	dhcpConn net.PacketConn
	dnsConn  net.PacketConn
}

// NewService returns a Service that only runs while gate reports an access point.
func NewService(cfg Config, gate Gate) *Service {
	if cfg.BroadcastAddr == "" {
		cfg.BroadcastAddr = "255.255.255.255:68"
	}
	return &Service{cfg: cfg, gate: gate, log: logging.Named("captive")}
}

// Listen binds both sockets. Run calls it if it has not been called.
func (s *Service) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dhcpConn != nil {
		return nil
	}

	dhcpConn, err := net.ListenPacket("udp4", s.cfg.DHCPAddr)
	if err != nil {
		return fmt.Errorf("bind dhcp %s: %w", s.cfg.DHCPAddr, err)
	}
	dnsConn, err := net.ListenPacket("udp4", s.cfg.DNSAddr)
	if err != nil {
		dhcpConn.Close()
		return fmt.Errorf("bind dns %s: %w", s.cfg.DNSAddr, err)
	}
	s.dhcpConn = dhcpConn
	s.dnsConn = dnsConn
	return nil
}

// DHCPAddr returns the bound DHCP address, or nil before Listen.
func (s *Service) DHCPAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dhcpConn == nil {
		return nil
	}
	return s.dhcpConn.LocalAddr()
}

// DNSAddr returns the bound DNS address, or nil before Listen.
func (s *Service) DNSAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dnsConn == nil {
		return nil
	}
	return s.dnsConn.LocalAddr()
}

// Run serves both responders until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	if s.gate.Mode() != radio.ModeAccessPoint {
		return errors.New("captive portal requires access point mode")
	}
	if !s.gate.LinkUp() {
		return errors.New("captive portal requires the access point link to be up")
	}
	if err := s.Listen(); err != nil {
		return err
	}

	broadcast, err := net.ResolveUDPAddr("udp4", s.cfg.BroadcastAddr)
	if err != nil {
		return fmt.Errorf("resolve broadcast address: %w", err)
	}

	s.mu.Lock()
	dhcpConn, dnsConn := s.dhcpConn, s.dnsConn
	s.mu.Unlock()

	s.log.Info("Captive portal responders running",
		zap.Stringer("dhcp", dhcpConn.LocalAddr()),
		zap.Stringer("dns", dnsConn.LocalAddr()),
		zap.String("gateway", s.cfg.DNS.Address.String()),
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.serveDHCP(dhcpConn, broadcast)
	}()
	go func() {
		defer wg.Done()
		s.serveDNS(dnsConn)
	}()

	<-ctx.Done()
	dhcpConn.Close()
	dnsConn.Close()
	wg.Wait()

	s.mu.Lock()
	s.dhcpConn, s.dnsConn = nil, nil
	s.mu.Unlock()

	s.log.Info("Captive portal responders stopped")
	return nil
}

func (s *Service) serveDHCP(conn net.PacketConn, broadcast net.Addr) {
	var in [maxDatagram]byte
	var out [ReplyLen]byte

	for {
		n, from, err := conn.ReadFrom(in[:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("DHCP read failed", zap.Error(err))
			continue
		}
		logging.LogDatagram("dhcp", "received", from.String(), in[:n])

		s.guard("dhcp", func() {
			req, err := ParseMessage(in[:n])
			if err != nil {
				s.log.Debug("Dropping DHCP datagram", zap.String("from", from.String()), zap.Error(err))
				s.cfg.Metrics.ObserveDropped("dhcp")
				return
			}
			size, ok := s.cfg.Lease.Respond(&req, out[:])
			if !ok {
				s.log.Debug("Ignoring DHCP message", zap.Stringer("type", req.Type))
				return
			}
			if _, err := conn.WriteTo(out[:size], broadcast); err != nil {
				s.log.Warn("DHCP reply failed", zap.Error(err))
				return
			}

			replyType := Offer
			if req.Type == Request {
				replyType = Ack
			}
			s.log.Info("DHCP reply sent",
				zap.Stringer("type", replyType),
				zap.String("client_mac", net.HardwareAddr(req.HardwareAddr()).String()),
				zap.Stringer("offered_ip", s.cfg.Lease.OfferedIP),
			)
			s.cfg.Metrics.ObserveDHCPReply(replyType.String())
		})
	}
}

func (s *Service) serveDNS(conn net.PacketConn) {
	var in [maxDatagram]byte

	for {
		n, from, err := conn.ReadFrom(in[:])
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("DNS read failed", zap.Error(err))
			continue
		}
		logging.LogDatagram("dns", "received", from.String(), in[:n])

		s.guard("dns", func() {
			answer, err := s.cfg.DNS.Respond(in[:n])
			if err != nil {
				s.log.Debug("Dropping DNS datagram", zap.String("from", from.String()), zap.Error(err))
				s.cfg.Metrics.ObserveDropped("dns")
				return
			}
			if _, err := conn.WriteTo(answer, from); err != nil {
				s.log.Warn("DNS reply failed", zap.Error(err))
				return
			}
			s.cfg.Metrics.ObserveDNSAnswer()
		})
	}
}

// guard runs fn, turning a panic into a dropped datagram.
func (s *Service) guard(service string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered while handling datagram",
				zap.String("service", service),
				zap.Any("panic", r),
			)
			s.cfg.Metrics.ObserveDropped(service)
		}
	}()
	fn()
}
