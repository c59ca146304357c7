// Package radio defines the vocabulary shared by everything that touches the
// Wi-Fi radio: the operating mode, the connection state machine, station
// credentials and the Driver interface behind which the physical radio sits.
//
// # State Machine
//
// The connection manager walks the following graph and nothing else:
//
//	Stopped      -> Connecting
//	Connecting   -> Connected | Connecting | Stopped
//	Connected    -> Disconnected | Stopped
//	Disconnected -> Connecting | Stopped
//
// ValidTransition reports whether an edge is part of the graph.
//
// # Drivers
//
// Two drivers are provided:
//   - SimDriver: in-memory radio with scriptable association failures and
//     link drops. Used by tests and by `inkclockd run --simulate`.
//   - LinuxDriver (linux only): station mode over nl80211 using
//     github.com/mdlayher/wifi, access point mode through a hostapd child
//     process with a static interface address.
package radio
