package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/robofleet/fleetwatch"
	"github.com/robofleet/fleetwatch/telemetry"
)

func main() {
	// start mock fleet API (see mock_server.go)
	go StartMockFleet(":9999")
	time.Sleep(100 * time.Millisecond)

	fw, err := fleetwatch.New(
		fleetwatch.WithBaseURL("http://localhost:9999"),
		fleetwatch.WithGeneralInterval(5*time.Second),
		fleetwatch.WithMotorInterval(time.Second),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   fleetwatch Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Watching 3 simulated robots on :9999                ║")
	fmt.Println("  ║   • general status every 5s                           ║")
	fmt.Println("  ║   • motor telemetry every 1s                          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := fw.Start(ctx); err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	defer fw.Stop()

	updates := fw.Subscribe()
	defer fw.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.Class == telemetry.UpdateMotor {
				continue
			}
			printSnapshot(fw.Snapshot())
		}
	}
}

func printSnapshot(snap telemetry.Snapshot) {
	if snap.LastError != nil {
		fmt.Printf("%s  fetch error: %s\n", snap.LastUpdatedAt.Format("15:04:05"), *snap.LastError)
		return
	}

	names := make([]string, 0, len(snap.Connectivity))
	for name := range snap.Connectivity {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%s\n", snap.LastUpdatedAt.Format("15:04:05"))
	for _, name := range names {
		status := telemetry.WorkingStatus(snap.RobotStatus[name], snap.Connectivity[name])
		line := fmt.Sprintf("  %-8s %-14s", name, status)

		if rs, ok := snap.RobotStatus[name]; ok {
			line += fmt.Sprintf(" battery=%s%%", telemetry.FormatValue(rs.BatterySOC))
		}
		if rec, ok := snap.MotorData[name]; ok {
			if telemetry.AreAllChannelsZero(rec, telemetry.EpsilonSummary) {
				line += " motors=idle"
			} else {
				line += fmt.Sprintf(" m1=%sA m2=%sA",
					telemetry.FormatValue(rec.Motor1.Current),
					telemetry.FormatValue(rec.Motor2.Current))
			}
		}
		fmt.Println(line)
	}
}
