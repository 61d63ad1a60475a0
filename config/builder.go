package config

import (
	"github.com/robofleet/fleetwatch"
)

// BuildOptions converts parsed configuration into SDK options.
//
// The returned slice is ready to pass to fleetwatch.New. The robot
// registry is not part of the watcher itself; callers that need it
// read Config.Robots directly.
func BuildOptions(cfg *Config) []fleetwatch.Option {
	opts := []fleetwatch.Option{
		fleetwatch.WithBaseURL(cfg.BaseURL),
		fleetwatch.WithGeneralInterval(cfg.GeneralInterval.Duration()),
		fleetwatch.WithMotorInterval(cfg.MotorInterval.Duration()),
		fleetwatch.WithRequestTimeout(cfg.RequestTimeout.Duration()),
	}

	if cfg.UseBackgroundPoller != nil {
		opts = append(opts, fleetwatch.WithBackgroundPoller(*cfg.UseBackgroundPoller))
	}

	return opts
}
