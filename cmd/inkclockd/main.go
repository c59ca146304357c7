// Inkclockd is the connectivity and power daemon of the inkclock e-ink clock.
//
// On first boot it hosts the inkclock-setup network with a captive portal
// where the owner enters home Wi-Fi credentials. Once provisioned it joins
// that network only when a task needs it, keeps the wall clock synced and
// puts the board to sleep when idle.
//
// Usage:
//
//	inkclockd run [flags]
//
// See 'inkclockd run --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inkclock/inkclock/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inkclockd",
	Short: "inkclock connectivity and power daemon",
	Long: `The inkclock daemon manages the clock's Wi-Fi radio and power state.

Without stored credentials it starts the inkclock-setup access point and
serves the setup page. With credentials it joins the home network on demand,
syncs the wall clock and sleeps when idle.

To configure a clock from a laptop, use the separate 'inkclock-cfg' utility.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resetStorageCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inkclockd %s (commit: %s)\n", version.Version, version.Commit)
	},
}
