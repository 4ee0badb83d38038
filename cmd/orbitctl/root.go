package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/config"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
)

var (
	rootConfigPath string
	rootDBPath     string
)

var rootCmd = &cobra.Command{
	Use:          "orbitctl",
	Short:        "Conjunction engine operations toolkit",
	Long:         "orbitctl manages the object catalog and runs screening passes and maneuver planning against it directly, without a running API server.",
	SilenceUsage: true,
}

// Execute runs the root command, cancelling on SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Path to a YAML config file; CONJ_ env vars override either way")
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "Override the catalog database path")
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(planCmd)
}

// loadConfig reads the layered configuration and applies CLI overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootConfigPath)
	if err != nil {
		return nil, err
	}
	if rootDBPath != "" {
		cfg.Catalog.DBPath = rootDBPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*catalog.Store, error) {
	store, err := catalog.Open(cfg.Catalog.DBPath, cfg.Screening.BatchRetention)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.Catalog.DBPath, err)
	}
	return store, nil
}

// cliLogger keeps interactive output quiet unless CONJ_LOG_LEVEL lowers the
// threshold.
func cliLogger() logging.Logger {
	level := os.Getenv("CONJ_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return logging.New(logging.Config{Level: level, Format: "text"})
}
