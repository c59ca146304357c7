// Package app builds the daemon's components once and runs the boot flow.
//
// There is no package-level state: everything the daemon needs hangs off
// App, and tests build as many independent Apps as they like by passing
// simulated collaborators in Deps.
//
// Boot order:
//
//  1. Load credentials, re-initializing a store with a bad tag.
//  2. Restore the wall clock from the retained region if the device slept,
//     then clear the sleep stamp.
//  3. Without credentials, host the provisioning network: access point,
//     DHCP and DNS responders, setup page and mDNS announcement.
//  4. With credentials, join the network in the background and run the
//     broker watchdog, sleep scheduler, time sync and status API.
package app
