package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/app"
	"github.com/inkclock/inkclock/internal/config"
	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/power"
	"github.com/inkclock/inkclock/internal/radio"
	"github.com/inkclock/inkclock/internal/storage"
	"github.com/inkclock/inkclock/internal/version"
)

var (
	configPath string
	logLevel   string
	simulate   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/inkclock/config.yaml)")

	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides logging.level")
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Use a simulated radio instead of the wireless interface")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run the daemon until SIGINT or SIGTERM.

With --simulate the radio is replaced by an in-memory driver that associates
instantly, which is useful for exercising the provisioning page and status
API on a development machine. Wake pins are not configured in that mode.`,
	Example: `  # Run on the clock
  inkclockd run

  # Run against a simulated radio with debug logging
  inkclockd run --simulate --log-level debug --config ./dev.yaml`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if err := logging.InitializeWithOptions(logging.Options{Level: level, File: cfg.Logging.File}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	logging.Info("Starting inkclockd",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("interface", cfg.Device.Interface),
		zap.Bool("simulate", simulate),
	)

	deps := app.Deps{}
	if simulate {
		deps.Driver = radio.NewSimDriver()
	} else {
		driver, err := radio.NewLinuxDriver(cfg.Device.Interface, cfg.Device.DataDir)
		if err != nil {
			return err
		}
		defer driver.Close()
		deps.Driver = driver

		if len(cfg.Sleep.WakePins) > 0 {
			if err := power.InitHost(); err != nil {
				return err
			}
			pins, err := power.ResolveWakePins(cfg.Sleep.WakePins)
			if err != nil {
				return err
			}
			deps.Pins = pins
		}
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = a.Boot(ctx)
	logging.Info("inkclockd stopped")
	return err
}

var resetStorageCmd = &cobra.Command{
	Use:   "reset-storage",
	Short: "Erase stored Wi-Fi credentials",
	Long: `Re-initialize the credential store to first-boot defaults.

The next 'inkclockd run' starts the provisioning network again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := logging.InitializeFromEnv(); err != nil {
			return err
		}

		path := app.CredentialsPath(cfg)
		if err := storage.NewCredentialStore(storage.NewFileBlob(path)).Reset(); err != nil {
			return err
		}
		fmt.Printf("Credential store reset: %s\n", path)
		return nil
	},
}
