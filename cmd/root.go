package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "velaa",
	Short: "Velaa billing backend",
	Long: `Velaa keeps the monthly rental ledger for a vehicle fleet: one invoice per
vehicle per billing month, payments, reminders and the background jobs that
generate invoices and flag overdue ones.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		l := logger.WithComponent("cmd")
		l.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and configures the global logger.
func loadConfig(runMode string) (*config.Config, error) {
	cfg, err := config.Load(runMode)
	if err != nil {
		return nil, err
	}
	if err := logger.Setup(logger.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	}); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return cfg, nil
}
