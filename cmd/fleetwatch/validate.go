package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robofleet/fleetwatch/config"
)

// validateCmd validates a config file without starting the watcher.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a fleetwatch configuration file without starting the watcher.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  fleetwatch validate -c config.yaml
  fleetwatch validate --config /etc/fleetwatch/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	withMotors := 0
	for _, r := range cfg.Robots {
		if r.HasMotors {
			withMotors++
		}
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Base URL:         %s\n", cfg.BaseURL)
	fmt.Printf("  General interval: %s\n", cfg.GeneralInterval.Duration())
	fmt.Printf("  Motor interval:   %s\n", cfg.MotorInterval.Duration())
	fmt.Printf("  Robots:           %d total, %d with motors\n", len(cfg.Robots), withMotors)

	return nil
}
