package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MacRimi/proxmon/internal/config"
	"github.com/MacRimi/proxmon/internal/health"
	"github.com/MacRimi/proxmon/internal/probe"
	"github.com/MacRimi/proxmon/internal/storage"
)

var (
	configPath string
	dbPath     string

	cfg     *config.Config
	store   storage.Store
	monitor *health.Monitor
)

var rootCmd = &cobra.Command{
	Use:   "proxmon",
	Short: "Host health monitor for Proxmox nodes",
	Long: `proxmon evaluates host health across services, storage, disks, guests,
network, CPU, memory, logs, updates and security, with hysteresis on
noisy metrics and a durable deduplicated error store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		}))

		// A broken database degrades to non-persistent evaluation rather
		// than taking the status commands down with it.
		store, err = storage.NewStore(cmd.Context(), cfg)
		if err != nil {
			logger.Warn("error store unavailable, running without persistence", "err", err)
			store = nil
		}

		monitor = health.New(cfg, probe.NewSystemProvider(cfg.Probe, logger), store, logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/proxmon/config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the error database (overrides config)")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
