// Package config provides device configuration management for the inkclock daemon.
//
// The configuration is a YAML file describing how the clock brings up its
// radio, how long the network may stay idle, and how the device sleeps. The
// file is optional: every field has a default matching the shipped firmware,
// and a missing file yields exactly those defaults.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/inkclock/config.yaml or $HOME/.config/inkclock/config.yaml
//   - macOS: $HOME/.config/inkclock/config.yaml
//
// The daemon accepts an explicit path with --config, which is what a systemd
// unit normally passes (/etc/inkclock/config.yaml).
//
// # Durations
//
// Durations are written as Go duration strings:
//
//	broker:
//	  acquire_timeout: 10s
//	  idle_timeout: 30s
//	  watchdog_interval: 3s
//
// # Security
//
// Wi-Fi credentials entered through the provisioning portal are NOT stored in
// this file. They live in the credential store under device.data_dir.
//
// # Usage Example
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Save serializes file writes with a package mutex and writes atomically
// through a temporary file and rename.
package config
