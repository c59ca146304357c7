package captive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

const (
	opRequest = 1
	opReply   = 2

	headerLen = 236
	// MinMessageLen is the fixed header plus the magic cookie.
	MinMessageLen = headerLen + 4
	// ReplyLen is the size of every reply; BOOTP clients expect at least 300 bytes.
	ReplyLen = 300
)

var magicCookie = [4]byte{99, 130, 83, 99}

// DHCP option codes used by the responder.
const (
	optPad         = 0
	optSubnetMask  = 1
	optRouter      = 3
	optDNS         = 6
	optRequestedIP = 50
	optLeaseTime   = 51
	optMessageType = 53
	optServerID    = 54
	optEnd         = 255
)

// MessageType is the DHCP message type (option 53).
type MessageType byte

const (
	Discover MessageType = 1
	Offer    MessageType = 2
	Request  MessageType = 3
	Decline  MessageType = 4
	Ack      MessageType = 5
	Nak      MessageType = 6
	Release  MessageType = 7
	Inform   MessageType = 8
)

func (t MessageType) String() string {
	switch t {
	case Discover:
		return "DISCOVER"
	case Offer:
		return "OFFER"
	case Request:
		return "REQUEST"
	case Decline:
		return "DECLINE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case Release:
		return "RELEASE"
	case Inform:
		return "INFORM"
	default:
		return fmt.Sprintf("MessageType(%d)", byte(t))
	}
}

var (
	errShortMessage = errors.New("dhcp message too short")
	errBadCookie    = errors.New("dhcp magic cookie mismatch")
	errTruncated    = errors.New("dhcp option truncated")
	errNoType       = errors.New("dhcp message type option missing")
)

// Message is the subset of a DHCP request the responder needs. It is a plain
// value so parsing does not allocate.
type Message struct {
	Op          byte
	HType       byte
	HLen        byte
	XID         uint32
	Flags       uint16
	CIAddr      [4]byte
	GIAddr      [4]byte
	CHAddr      [16]byte
	Type        MessageType
	RequestedIP [4]byte
}

// HardwareAddr returns the significant bytes of CHAddr.
func (m *Message) HardwareAddr() []byte {
	n := int(m.HLen)
	if n == 0 || n > len(m.CHAddr) {
		n = 6
	}
	return m.CHAddr[:n]
}

// ParseMessage decodes a DHCP message. Options are walked with bounds
// checks; unknown options are skipped.
func ParseMessage(b []byte) (Message, error) {
	var m Message
	if len(b) < MinMessageLen {
		return m, fmt.Errorf("%w: %d bytes", errShortMessage, len(b))
	}
	if [4]byte(b[236:240]) != magicCookie {
		return m, errBadCookie
	}

	m.Op = b[0]
	m.HType = b[1]
	m.HLen = b[2]
	m.XID = binary.BigEndian.Uint32(b[4:8])
	m.Flags = binary.BigEndian.Uint16(b[10:12])
	copy(m.CIAddr[:], b[12:16])
	copy(m.GIAddr[:], b[24:28])
	copy(m.CHAddr[:], b[28:44])

	opts := b[MinMessageLen:]
	for i := 0; i < len(opts); {
		code := opts[i]
		if code == optEnd {
			break
		}
		if code == optPad {
			i++
			continue
		}
		if i+1 >= len(opts) {
			return m, errTruncated
		}
		length := int(opts[i+1])
		start, end := i+2, i+2+length
		if end > len(opts) {
			return m, fmt.Errorf("%w: option %d wants %d bytes", errTruncated, code, length)
		}
		value := opts[start:end]

		switch code {
		case optMessageType:
			if length == 1 {
				m.Type = MessageType(value[0])
			}
		case optRequestedIP:
			if length == 4 {
				copy(m.RequestedIP[:], value)
			}
		}
		i = end
	}

	if m.Type == 0 {
		return m, errNoType
	}
	return m, nil
}

// LeaseResponder hands out a single fixed lease.
type LeaseResponder struct {
	ServerIP     netip.Addr // gateway; also router, server identifier and DNS server
	OfferedIP    netip.Addr
	Netmask      netip.Addr
	LeaseSeconds uint32
}

// Respond writes the reply to req into buf and returns its length. ok is
// false for messages that get no reply. buf must hold ReplyLen bytes.
func (r *LeaseResponder) Respond(req *Message, buf []byte) (n int, ok bool) {
	if req.Op != opRequest || len(buf) < ReplyLen {
		return 0, false
	}

	var replyType MessageType
	switch req.Type {
	case Discover:
		replyType = Offer
	case Request:
		replyType = Ack
	default:
		return 0, false
	}

	b := buf[:ReplyLen]
	clear(b)

	server := r.ServerIP.As4()
	offered := r.OfferedIP.As4()
	mask := r.Netmask.As4()

	b[0] = opReply
	b[1] = req.HType
	b[2] = req.HLen
	binary.BigEndian.PutUint32(b[4:8], req.XID)
	binary.BigEndian.PutUint16(b[10:12], req.Flags)
	copy(b[16:20], offered[:])
	copy(b[20:24], server[:])
	copy(b[24:28], req.GIAddr[:])
	copy(b[28:44], req.CHAddr[:])
	copy(b[236:240], magicCookie[:])

	pos := MinMessageLen
	put := func(code byte, value ...byte) {
		b[pos] = code
		b[pos+1] = byte(len(value))
		copy(b[pos+2:], value)
		pos += 2 + len(value)
	}

	var lease [4]byte
	binary.BigEndian.PutUint32(lease[:], r.LeaseSeconds)

	put(optMessageType, byte(replyType))
	put(optRouter, server[:]...)
	put(optSubnetMask, mask[:]...)
	put(optLeaseTime, lease[:]...)
	put(optServerID, server[:]...)
	put(optDNS, server[:]...)
	b[pos] = optEnd

	return ReplyLen, true
}
