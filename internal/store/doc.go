// Package store holds the merged telemetry snapshot for fleetwatch.
//
// This package is internal to fleetwatch and manages the in-memory,
// versioned view of the fleet: connectivity, general robot status, and
// motor telemetry, each merged independently so an update to one data
// class never clobbers another. Per-class update keys let consumers detect
// freshness without deep comparison.
//
// A publish-subscribe mechanism notifies consumers of changes via channels
// with non-blocking sends (slow subscribers miss updates rather than block
// the merge path).
//
// Users of the fleetwatch library should not need to interact with this
// package directly. Storage is managed internally by the orchestrator.
package store
