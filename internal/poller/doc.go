// Package poller implements the dual-rate fetch loops of fleetwatch.
//
// This package is internal to fleetwatch and handles the actual HTTP
// traffic against the fleet API. The main components are:
//
//   - [Client]: fleet API client with the fetch error taxonomy
//   - [Worker]: isolated high-frequency motor poller driven by messages
//   - [Fallback]: fixed-interval degraded substitute for the Worker
//
// The Worker shares no mutable state with its owner: commands flow in,
// results flow out, and everything in between happens on its own
// goroutine. Users of the fleetwatch library should not need to interact
// with this package directly.
package poller
