// Package ui renders inkclock-cfg output in the terminal.
//
// Commands that run once (scan, provision, status) print lipgloss boxes
// through a Printer. The monitor command runs a Bubble Tea program that
// redraws the status box every time the daemon pushes a snapshot.
//
// Example:
//
//	p := ui.NewPrinter(nil)
//	p.PrintHeader("Provision", "inkclock-cfg provision", []ui.Field{
//	    {Key: "Device", Value: "192.168.2.1:8080"},
//	    {Key: "SSID", Value: "HomeNet"},
//	})
//	if err != nil {
//	    p.PrintFailure("Provisioning failed", err, tips)
//	}
//
// # Logging Integration
//
// Logging is controlled by the INKCLOCK_LOG_LEVEL environment variable.
// When unset, zap is silent so the boxes are the only output.
package ui
