// Package fleetwatch provides adaptive dual-rate telemetry acquisition for
// a fleet of cleaning robots monitored over HTTP.
//
// FleetWatch is designed as an SDK-first library: applications embed it,
// point it at a fleet API, and read a continuously merged snapshot of
// connectivity, robot status, and motor telemetry. Configuration is
// composable via the functional options pattern.
//
// # Quick Start
//
// Create an orchestrator and start it with graceful shutdown:
//
//	fw, _ := fleetwatch.New(fleetwatch.WithBaseURL("http://fleet-host:8000"))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	if err := fw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer fw.Stop()
//
//	snap := fw.Snapshot() // merged view, safe to keep
//
// # Dual-rate polling
//
// Two loops run at independent cadences:
//
//   - A general-status loop (default 5s) fetches connectivity, per-robot
//     status, and cleaning device status. Its failures are visible via the
//     snapshot's LastError and never stop the loop.
//   - A motor telemetry loop (default 1s) runs isolated in a background
//     worker goroutine communicating purely by message passing, so a flood
//     of high-frequency results can never starve the orchestrator. Its
//     failures are silent and drive an additive backoff: past three
//     consecutive errors the worker doubles its delay (once) and
//     recovers the nominal cadence on the next success.
//
// If the background worker cannot be started, a simpler same-context
// fallback poller takes over at the same cadence, without backoff.
//
// # Freshness
//
// Every merged update advances a per-class update key by exactly one.
// Consumers that redraw on change compare [FleetWatch.Keys] between reads
// instead of deep-comparing snapshots, or receive notifications from
// [FleetWatch.Subscribe].
//
// # Architecture
//
// FleetWatch consists of several packages:
//
//   - telemetry: shared data model and pure threshold/formatting functions
//   - internal/poller: fleet API client, background worker, fallback poller
//   - internal/store: versioned snapshot store with pub/sub
//   - config: YAML configuration for the standalone CLI
//
// The internal packages are not part of the public API and may change
// without notice.
package fleetwatch
