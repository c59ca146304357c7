package captive

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/inkclock/inkclock/internal/metrics"
	"github.com/inkclock/inkclock/internal/radio"
)

type fakeGate struct {
	mode   radio.Mode
	linkUp bool
}

func (g fakeGate) Mode() radio.Mode { return g.mode }
func (g fakeGate) LinkUp() bool     { return g.linkUp }

func startService(t *testing.T) (*Service, net.PacketConn) {
	t.Helper()

	// Stands in for the broadcast address so the test can read replies.
	client, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })

	svc := NewService(Config{
		DHCPAddr:      "127.0.0.1:0",
		DNSAddr:       "127.0.0.1:0",
		BroadcastAddr: client.LocalAddr().String(),
		Lease:         *testLease(),
		DNS:           HijackResponder{Address: netip.MustParseAddr("192.168.2.1"), TTL: 60},
		Metrics:       metrics.New(),
	}, fakeGate{mode: radio.ModeAccessPoint, linkUp: true})

	if err := svc.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	return svc, client
}

func TestServiceDHCPRoundTrip(t *testing.T) {
	svc, client := startService(t)

	// Garbage first: the loop must survive it.
	if _, err := client.WriteTo([]byte("not dhcp"), svc.DHCPAddr()); err != nil {
		t.Fatal(err)
	}
	if _, err := client.WriteTo(buildRequest(0x01020304, Discover), svc.DHCPAddr()); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 1500)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("no DHCP reply: %v", err)
	}
	if n != ReplyLen {
		t.Errorf("reply length = %d, want %d", n, ReplyLen)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != 0x01020304 {
		t.Errorf("xid = %#x, want 0x01020304", got)
	}
	opts, _ := replyOptions(t, buf[:n])
	if MessageType(opts[optMessageType][0]) != Offer {
		t.Errorf("reply type = %v, want OFFER", MessageType(opts[optMessageType][0]))
	}
}

func TestServiceDNSRoundTrip(t *testing.T) {
	svc, _ := startService(t)

	conn, err := net.Dial("udp4", svc.DNSAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// A malformed query is dropped and the next one is still answered.
	if _, err := conn.Write([]byte{0xff}); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(packQuery(t, "neverssl.com", dns.TypeA)); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 512)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("no DNS reply: %v", err)
	}
	var resp dns.Msg
	if err := resp.Unpack(buf[:n]); err != nil {
		t.Fatal(err)
	}
	if resp.Id != 0xbeef || len(resp.Answer) != 1 {
		t.Errorf("reply id=%#x answers=%d", resp.Id, len(resp.Answer))
	}
}

func TestServiceRequiresAccessPoint(t *testing.T) {
	tests := []struct {
		name string
		gate fakeGate
	}{
		{name: "station mode", gate: fakeGate{mode: radio.ModeStation, linkUp: true}},
		{name: "link down", gate: fakeGate{mode: radio.ModeAccessPoint}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Config{DHCPAddr: "127.0.0.1:0", DNSAddr: "127.0.0.1:0"}, tt.gate)
			if err := svc.Run(context.Background()); err == nil {
				t.Error("Run() should refuse to start")
			}
			if svc.DHCPAddr() != nil {
				t.Error("sockets should not be bound")
			}
		})
	}
}
