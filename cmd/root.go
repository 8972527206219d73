package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NOVASWAY/Seth2.0-sub005/shared/config"
	"github.com/NOVASWAY/Seth2.0-sub005/shared/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "clinic",
	Short: "Clinic backend: inventory ledger, billing and clinical workflows",
	Long: `Clinic backend serving the inventory ledger, billing and reconciliation
(including M-Pesa STK push), prescriptions, lab requests and authentication
from a single binary.

Configuration is read from the environment, or from a .env file in the
working directory when present.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: json or console (overrides LOG_FORMAT)")
}

// loadConfig reads the configuration, applies the logging flags and sets up
// the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}

	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	return cfg, nil
}
