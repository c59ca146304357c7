// Inkclock-cfg is a setup utility for inkclock e-ink clocks.
//
// It finds clocks that are in setup mode, sends home Wi-Fi credentials to
// their provisioning page and shows the live connectivity and power status
// of a running clock.
//
// Usage:
//
//	inkclock-cfg [command] [flags]
//
// See 'inkclock-cfg --help' for available commands.
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
	Use:   "inkclock-cfg",
	Short: "inkclock setup utility",
	Long: `A standalone utility for setting up inkclock e-ink clocks.

A clock without Wi-Fi credentials hosts the open network "inkclock-setup".
Join that network, then use 'scan' to find the clock and 'provision' to send
your home network credentials. Once the clock is on your network, 'status'
and 'monitor' show what its radio and power manager are doing.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inkclock-cfg %s (commit: %s)\n", version.Version, version.Commit)
	},
}
