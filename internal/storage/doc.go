// Package storage keeps the station credentials in a small opaque blob, the
// way the clock keeps them in a flash partition.
//
// # Layout
//
// The blob begins with a version header followed by the credential record:
//
//	Offset  Size  Field
//	0       4     Version (uint32 LE, currently 1)
//	4       4     Init tag (uint32 LE, 0x1234abcd)
//	16      1     SSID length
//	17      32    SSID bytes (zero padded)
//	49      1     Password length
//	50      32    Password bytes (zero padded)
//	82      1     Provisioned flag
//
// A blob whose header does not carry the expected version and tag is treated
// as first boot: the store is re-initialized to empty, unprovisioned
// credentials and the defaults are written back.
package storage
