// Package power decides when the clock may sleep and carries wall time
// across the sleep.
//
// The Scheduler sleeps only once the idle clock says nothing has happened
// for the idle threshold, and only after the Wi-Fi broker has let go of the
// radio and the connection manager reports Stopped. Before sleeping it writes
// the wall time and an RTC reading into the retained region; on the next boot
// RestoreWallClock adds the RTC time elapsed in between back onto the stored
// wall time, so the display shows the right time before any network sync.
//
// A Platform performs the sleep itself. On a microcontroller deep sleep
// never returns and execution resumes at boot. ProcessPlatform reproduces that
// on a Linux board: it optionally suspends the board through an external
// command, waits for the timer or a wake pin, then re-executes the daemon.
// SimPlatform records what would have happened, for tests.
package power
