// Package captive implements the two UDP responders that turn the
// provisioning access point into a captive portal.
//
//   - LeaseResponder answers DHCP DISCOVER and REQUEST with a single fixed
//     lease. There is no lease table: the portal serves one client at a time
//     for the length of a setup session.
//   - HijackResponder answers every DNS query with an A record pointing at
//     the gateway, so any lookup from a joined client lands on the portal.
//
// Service binds both responders and runs their receive loops. A datagram
// that fails to parse is dropped and the loop continues; a panic while
// handling one datagram is recovered and counted as a drop.
//
// # DHCP Wire Format
//
// Messages use the fixed BOOTP layout (RFC 2131 section 2):
//
//	Offset  Size  Field
//	0       1     op (1 = request, 2 = reply)
//	1       1     htype
//	2       1     hlen
//	3       1     hops
//	4       4     xid
//	8       2     secs
//	10      2     flags
//	12      4     ciaddr
//	16      4     yiaddr
//	20      4     siaddr
//	24      4     giaddr
//	28      16    chaddr
//	44      64    sname
//	108     128   file
//	236     4     magic cookie 63 82 53 63
//	240     ...   options
//
// Replies carry options in this order: message type (53), router (3),
// subnet mask (1), lease time (51), server identifier (54), DNS server (6),
// end (255).
package captive
