package fleetwatch

import (
	"errors"
	"log/slog"
	"time"

	"github.com/robofleet/fleetwatch/telemetry"
)

// ErrNoBaseURL is returned by [New] when no fleet API base URL was
// configured.
var ErrNoBaseURL = errors.New("a fleet API base URL is required")

// fwConfig holds mutable state during FleetWatch construction.
type fwConfig struct {
	baseURL         string
	generalInterval time.Duration
	motorInterval   time.Duration
	requestTimeout  time.Duration
	useWorker       bool
	logger          *slog.Logger
	updateCallbacks []func(telemetry.Update)
}

// Option configures a [FleetWatch] during construction.
//
// Option implements the functional options pattern; options return an
// error if validation fails. Built-in options: [WithBaseURL],
// [WithGeneralInterval], [WithMotorInterval], [WithBackgroundPoller],
// [WithRequestTimeout], [WithLogger], [WithUpdateCallback].
type Option func(*fwConfig) error

// WithBaseURL sets the fleet API base URL, e.g. "http://fleet-host:8000".
// The orchestrator polls {base}/api/robot-status. Required.
func WithBaseURL(u string) Option {
	return func(cfg *fwConfig) error {
		if u == "" {
			return ErrNoBaseURL
		}
		cfg.baseURL = u
		return nil
	}
}

// WithGeneralInterval sets the cadence of the general-status loop.
// Defaults to 5 seconds. Returns an error if the duration is not positive.
func WithGeneralInterval(d time.Duration) Option {
	return func(cfg *fwConfig) error {
		if d <= 0 {
			return errors.New("general interval must be positive")
		}
		cfg.generalInterval = d
		return nil
	}
}

// WithMotorInterval sets the nominal cadence of the motor telemetry loop.
//
// This is a configuration input, not a fixed system constant: deployments
// run it anywhere from tens of milliseconds to multiple seconds. Defaults
// to 1 second. Returns an error if the duration is not positive.
func WithMotorInterval(d time.Duration) Option {
	return func(cfg *fwConfig) error {
		if d <= 0 {
			return errors.New("motor interval must be positive")
		}
		cfg.motorInterval = d
		return nil
	}
}

// WithBackgroundPoller enables or disables the isolated background motor
// poller. When disabled, motor telemetry runs on the same-context fallback
// poller from the start. Defaults to enabled.
func WithBackgroundPoller(enabled bool) Option {
	return func(cfg *fwConfig) error {
		cfg.useWorker = enabled
		return nil
	}
}

// WithRequestTimeout bounds each individual fetch against the fleet API.
// Defaults to 10 seconds. Returns an error if the duration is not positive.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *fwConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithLogger sets the logger used by the orchestrator and its pollers.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *fwConfig) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithUpdateCallback registers a callback invoked after every store
// change: a merged general update, a merged motor update, or a visible
// general fetch error.
//
// Callbacks run synchronously on the merge goroutine, so keep them fast.
// A panicking callback is recovered and logged; it cannot stop the loops.
// Can be called multiple times to register multiple callbacks.
func WithUpdateCallback(cb func(telemetry.Update)) Option {
	return func(cfg *fwConfig) error {
		if cb == nil {
			return errors.New("update callback must not be nil")
		}
		cfg.updateCallbacks = append(cfg.updateCallbacks, cb)
		return nil
	}
}
