// Package logging provides structured logging for the inkclock daemon and tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used throughout the connectivity core. It provides both general
// logging functions and specialized functions for state machines and the
// captive portal services.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (datagram hex dumps, broker waits)
//   - Info: Normal operations (state transitions, leases, provisioning)
//   - Warn: Non-fatal issues (dropped datagrams, association retries)
//   - Error: Failures that need operator attention (storage writes)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Lease offered",
//	    zap.String("client_mac", "aa:bb:cc:dd:ee:ff"),
//	    zap.String("offered_ip", "192.168.2.2"),
//	)
//
// # Specialized Logging
//
// State machines report transitions through one helper so every component
// logs them identically:
//
//	logging.LogStateTransition("wifi", radio.StateConnecting, radio.StateConnected)
//
// Captive portal services log datagrams; the payload is hex dumped only when
// debug logging is enabled:
//
//	logging.LogDatagram("dhcp", "received", remoteAddr, packet)
//
// # Configuration
//
// Initialize logging at daemon startup:
//
//	if err := logging.InitializeWithOptions(logging.Options{
//	    Level: "info",
//	    File:  "/var/log/inkclock/inkclock.log",
//	}); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When File is set, entries are also written to a size-rotated file through
// lumberjack, which keeps the SD card from filling up on long-running devices.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap logger
// handles synchronization automatically.
package logging
