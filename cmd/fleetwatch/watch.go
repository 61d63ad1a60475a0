package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/robofleet/fleetwatch"
	"github.com/robofleet/fleetwatch/config"
	"github.com/robofleet/fleetwatch/telemetry"
)

const (
	shutdownTimeout = 10 * time.Second

	logMaxSizeMB  = 50
	logMaxBackups = 5
	logMaxAgeDays = 14
)

// newLogger creates a JSON logger for CLI use. When logFile is non-empty
// the output goes to a size-rotated file instead of stderr.
func newLogger(logFile string, debug bool) *slog.Logger {
	var out io.Writer = os.Stderr
	if logFile != "" {
		out = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	}))
}

// watchCmd starts the fleet telemetry watcher.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start watching the fleet",
	Long: `Start the fleet telemetry watcher.

The watcher will:
  - Load configuration from the specified YAML file
  - Poll general status (connectivity, robot status, devices) at the slow cadence
  - Poll motor telemetry at the fast cadence via the background poller
  - Print a one-line fleet summary on each general update

A .env file in the working directory is loaded before the config file,
so ${VAR} references in the config can be satisfied locally.

The watcher runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  fleetwatch watch -c config.yaml
  fleetwatch watch -c config.yaml --log-file /var/log/fleetwatch.log`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().String("log-file", "", "write logs to a rotated file instead of stderr")
	watchCmd.Flags().Bool("debug", false, "enable debug logging")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	// best effort: a missing .env is not an error
	_ = godotenv.Load()

	logFile, _ := cmd.Flags().GetString("log-file")
	debug, _ := cmd.Flags().GetBool("debug")
	logger := newLogger(logFile, debug)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"base_url", cfg.BaseURL,
		"robots", len(cfg.Robots),
	)
	logger.Info("starting watcher",
		"general_interval", cfg.GeneralInterval.Duration().String(),
		"motor_interval", cfg.MotorInterval.Duration().String(),
	)

	// fw is captured by the callback; callbacks only fire after Start,
	// so the assignment below always happens first.
	var fw *fleetwatch.FleetWatch

	opts := config.BuildOptions(cfg)
	opts = append(opts, fleetwatch.WithLogger(logger))
	opts = append(opts, fleetwatch.WithUpdateCallback(func(u telemetry.Update) {
		// motor updates are too frequent to print; summarize on the
		// slow loop, including visible fetch errors
		if u.Class == telemetry.UpdateMotor {
			return
		}
		fmt.Println(fleetSummary(fw.Snapshot(), cfg.Robots))
	}))

	fw, err = fleetwatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	<-ctx.Done()

	// graceful stop with timeout
	done := make(chan struct{})
	go func() {
		fw.Stop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}

// fleetSummary renders a one-line status summary per robot.
func fleetSummary(snap telemetry.Snapshot, registry map[string]config.RobotConfig) string {
	names := make([]string, 0, len(snap.Connectivity))
	for name := range snap.Connectivity {
		names = append(names, name)
	}
	sort.Strings(names)

	line := snap.LastUpdatedAt.Format("15:04:05")
	if snap.LastError != nil {
		return line + " fetch error: " + *snap.LastError
	}

	for _, name := range names {
		online := snap.Connectivity[name]
		status := telemetry.WorkingStatus(snap.RobotStatus[name], online)

		entry := fmt.Sprintf(" | %s: %s", name, status)
		if rc, ok := registry[name]; ok && rc.HasMotors {
			if rec, ok := snap.MotorData[name]; ok {
				entry += fmt.Sprintf(" m1=%sA m2=%sA",
					telemetry.FormatValue(rec.Motor1.Current),
					telemetry.FormatValue(rec.Motor2.Current),
				)
			}
		}
		line += entry
	}
	return line
}
