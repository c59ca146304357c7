package captive

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/miekg/dns"
)

var (
	errNoQuestion  = errors.New("dns query has no question")
	errNotAQuery   = errors.New("dns message is a response")
	errNotIPv4Addr = errors.New("hijack address must be IPv4")
)

// HijackResponder answers every DNS query with Address.
type HijackResponder struct {
	Address netip.Addr
	TTL     uint32
}

// Respond builds the answer to a raw DNS query. The reply echoes the id and
// question section, carries flags 0x8180 and one A record for the first
// question's name, whatever type was asked for.
func (r *HijackResponder) Respond(query []byte) ([]byte, error) {
	if !r.Address.Is4() {
		return nil, errNotIPv4Addr
	}

	var req dns.Msg
	if err := req.Unpack(query); err != nil {
		return nil, fmt.Errorf("unpack dns query: %w", err)
	}
	if req.Response {
		return nil, errNotAQuery
	}
	if len(req.Question) == 0 {
		return nil, errNoQuestion
	}

	resp := &dns.Msg{
		MsgHdr: dns.MsgHdr{
			Id:                 req.Id,
			Response:           true,
			Opcode:             dns.OpcodeQuery,
			RecursionDesired:   true,
			RecursionAvailable: true,
			Rcode:              dns.RcodeSuccess,
		},
		Question: req.Question,
		Answer: []dns.RR{&dns.A{
			Hdr: dns.RR_Header{
				Name:   req.Question[0].Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    r.TTL,
			},
			A: net.IP(r.Address.AsSlice()),
		}},
	}

	out, err := resp.Pack()
	if err != nil {
		return nil, fmt.Errorf("pack dns answer: %w", err)
	}
	return out, nil
}
