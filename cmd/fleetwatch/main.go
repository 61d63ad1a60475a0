// Package main is the entry point for the fleetwatch CLI.
//
// fleetwatch can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	fleetwatch watch -c config.yaml    # Start watching the fleet
//	fleetwatch validate -c config.yaml # Validate configuration
//	fleetwatch version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "fleetwatch",
	Short: "A robot fleet telemetry watcher",
	Long: `fleetwatch polls a robot fleet API at two cadences and maintains a
merged telemetry snapshot: a slow loop for connectivity and robot status,
and a fast loop for motor data.

Quick start:
  1. Create a config file (fleetwatch.yaml)
  2. Run: fleetwatch watch -c fleetwatch.yaml

Example config:
  base_url: http://${FLEET_HOST:-localhost}:8000
  general_interval: 5s
  motor_interval: 1s
  robots:
    base1:
      name: base1
      ip: 192.168.1.101
      has_motors: true`,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this fleetwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
