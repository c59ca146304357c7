package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkclock/inkclock/internal/discovery"
	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/portalclient"
	"github.com/inkclock/inkclock/internal/statusapi"
	"github.com/inkclock/inkclock/internal/ui"
)

var (
	scanTimeout int

	portalIP   string
	portalPort int
	ssid       string
	password   string
	retries    int

	statusAddr   string
	outputFormat string
)

func init() {
	cobra.OnInitialize(func() {
		// Silent unless INKCLOCK_LOG_LEVEL is set.
		_ = logging.InitializeFromEnv()
	})

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(provisionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(monitorCmd)

	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan timeout in seconds")

	provisionCmd.Flags().StringVar(&portalIP, "device", "", "Clock IP address (skips discovery)")
	provisionCmd.Flags().IntVar(&portalPort, "port", portalclient.DefaultPort, "Provisioning page port")
	provisionCmd.Flags().StringVar(&ssid, "ssid", "", "Home network name")
	provisionCmd.Flags().StringVar(&password, "password", "", "Home network password")
	provisionCmd.Flags().IntVar(&retries, "retries", portalclient.DefaultMaxRetries, "Retries on network errors")
	_ = provisionCmd.MarkFlagRequired("ssid")

	for _, cmd := range []*cobra.Command{statusCmd, monitorCmd} {
		cmd.Flags().StringVar(&statusAddr, "device", statusapi.DefaultAddr, "Status API address (host:port)")
	}
	statusCmd.Flags().StringVar(&outputFormat, "format", "detailed", "Output format (detailed, json)")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for clocks in setup mode",
	Long: `Scan for clocks in setup mode using mDNS/DNS-SD discovery.

Clocks announce their provisioning page while they host the inkclock-setup
network. Join that network before scanning.`,
	Example: `  # Scan for 10 seconds (default)
  inkclock-cfg scan

  # Quick 3-second scan
  inkclock-cfg scan --timeout 3`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("inkclock-cfg", "scan", []ui.Field{
		{Key: "Timeout", Value: fmt.Sprintf("%ds", scanTimeout)},
	})

	ctx, cancel := signalContext()
	defer cancel()

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		p.PrintFailure("Scan failed", err, []string{
			"Check that mDNS (UDP 5353) is not blocked by a firewall",
			"Use --device with 'provision' to skip discovery",
		})
		return err
	}

	p.Println(ui.RenderDevices(devices, p.Width()))
	if len(devices) > 0 {
		p.Println(ui.HelpStyle.Render("Use 'inkclock-cfg provision --device <ip> --ssid <name>' to configure a clock"))
	}
	return nil
}

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Send home Wi-Fi credentials to a clock",
	Long: `Submit home network credentials to a clock's provisioning page.

The clock stores the credentials and restarts, then joins the given network.
Without --device the clock is found by mDNS discovery.`,
	Example: `  # Provision the only clock in setup mode
  inkclock-cfg provision --ssid HomeNet --password hunter22

  # Provision a clock at a known address
  inkclock-cfg provision --device 192.168.2.1 --ssid HomeNet --password hunter22`,
	RunE: runProvision,
}

func runProvision(cmd *cobra.Command, args []string) error {
	p := ui.NewPrinter(cmd.OutOrStdout())

	ctx, cancel := signalContext()
	defer cancel()

	ip, port, err := resolvePortal(ctx, p)
	if err != nil {
		return err
	}

	p.PrintHeader("inkclock-cfg", "provision", []ui.Field{
		{Key: "Clock", Value: ip + ":" + strconv.Itoa(port)},
		{Key: "Network", Value: ssid},
	})

	client := portalclient.NewClient(ip, port)
	client.SetRetry(retries, portalclient.DefaultRetryDelay)

	if err := client.Configure(ctx, ssid, password); err != nil {
		p.PrintFailure(portalclient.GetShortErrorMessage(err), err,
			ui.TroubleshootingLines(portalclient.GetTroubleshootingHint(err)))
		return err
	}

	p.PrintSuccess("Credentials sent", []ui.Field{
		{Key: "Network", Value: ssid},
		{Key: "Next", Value: "the clock restarts and joins the network"},
	})
	return nil
}

// resolvePortal returns the --device address, or the single clock found by
// discovery.
func resolvePortal(ctx context.Context, p *ui.Printer) (string, int, error) {
	if portalIP != "" {
		return portalIP, portalPort, nil
	}

	p.Println("No clock address specified, attempting auto-discovery...")
	scanner := discovery.NewScanner()
	scanner.Timeout = 5 * time.Second

	devices, err := scanner.ScanForDevices(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("discovery failed: %w", err)
	}

	switch len(devices) {
	case 0:
		return "", 0, fmt.Errorf("no clocks in setup mode found. Use --device to specify the address manually")
	case 1:
		return devices[0].IP, devices[0].Port, nil
	default:
		p.Println(ui.RenderDevices(devices, p.Width()))
		return "", 0, fmt.Errorf("multiple clocks found. Use --device to specify which one")
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a clock's connectivity and power status",
	Long: `Fetch one status snapshot from a running clock.

The status API listens on loopback by default; point --device at the
address configured under status.listen to reach it from another machine.`,
	Example: `  # Status of the local daemon
  inkclock-cfg status

  # JSON output for scripting
  inkclock-cfg status --device 192.168.1.40:8090 --format json`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	snap, err := statusapi.NewClient(statusAddr).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	default:
		p := ui.NewPrinter(cmd.OutOrStdout())
		p.Println(ui.RenderStatus(snap, p.Width()))
	}
	return nil
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a clock's status live",
	Long: `Follow the status stream of a running clock.

In a terminal this opens a live view with the radio state, the network
lease holder and a countdown to the next sleep. When output is redirected
one line is printed per update instead.`,
	Example: `  inkclock-cfg monitor --device 192.168.1.40:8090`,
	RunE:    runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	client := statusapi.NewClient(statusAddr)

	if ui.IsTerminal() {
		return ui.RunMonitor(ctx, statusAddr, client.Stream)
	}

	out := cmd.OutOrStdout()
	return client.Stream(ctx, func(s statusapi.Snapshot) {
		holder := "-"
		if s.Broker.Held {
			holder = s.Broker.HolderID
		}
		fmt.Fprintf(out, "%s mode=%s state=%s link=%t address=%s holder=%s synced=%t\n",
			s.TakenAt.Format(time.RFC3339), s.Mode, s.State, s.LinkUp, s.Address, holder, s.Clock.Synced)
	})
}
