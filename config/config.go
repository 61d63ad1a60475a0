// Package config provides YAML configuration parsing for fleetwatch.
//
// This package enables running fleetwatch as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	base_url: http://${FLEET_HOST:-localhost}:8000
//	general_interval: 5s
//	motor_interval: 1s
//	use_background_poller: true
//
//	robots:
//	  base1:
//	    name: base1
//	    ip: 192.168.1.101
//	    has_motors: true
//	  base-b2:
//	    name: base-b2
//	    ip: 192.168.1.114
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minGeneralInterval prevents accidental hammering of the fleet API by an
// overly aggressive general loop. The motor loop is expected to run fast;
// its floor only guards against zero/negative values slipping through YAML.
const (
	minGeneralInterval = 1 * time.Second
	minMotorInterval   = 10 * time.Millisecond
)

// Config is the root configuration structure for fleetwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// BaseURL is the fleet API base URL, e.g. "http://fleet-host:8000".
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	BaseURL string `yaml:"base_url"`

	// GeneralInterval is the cadence of the general-status loop.
	// Accepts duration strings like "5s", "1m", "500ms". Defaults to 5s.
	GeneralInterval Duration `yaml:"general_interval"`

	// MotorInterval is the nominal cadence of the motor telemetry loop.
	// Defaults to 1s.
	MotorInterval Duration `yaml:"motor_interval"`

	// RequestTimeout bounds each individual fetch. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// UseBackgroundPoller enables the isolated background motor poller.
	// Defaults to true; set false to force the same-context fallback.
	UseBackgroundPoller *bool `yaml:"use_background_poller"`

	// Robots is the robot registry, keyed by robot id. The registry is
	// read-only metadata for display; the fleet API decides which robots
	// actually report.
	Robots map[string]RobotConfig `yaml:"robots"`
}

// RobotConfig describes one robot in the registry.
type RobotConfig struct {
	// Name is the display name, e.g. "base1" or "base-b2".
	Name string `yaml:"name"`

	// IP is the robot's address on the fleet network.
	IP string `yaml:"ip"`

	// HasMotors marks robots whose motor telemetry is meaningful.
	HasMotors bool `yaml:"has_motors"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the base URL. Defaults are applied
// for GeneralInterval (5s), MotorInterval (1s), and RequestTimeout (10s).
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.GeneralInterval == 0 {
		cfg.GeneralInterval = Duration(5 * time.Second)
	}
	if cfg.MotorInterval == 0 {
		cfg.MotorInterval = Duration(1 * time.Second)
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = Duration(10 * time.Second)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	expanded, err := expandEnvVars(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	c.BaseURL = expanded

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if c.GeneralInterval.Duration() < minGeneralInterval {
		return fmt.Errorf("general_interval must be at least %s, got %s",
			minGeneralInterval, c.GeneralInterval.Duration())
	}
	if c.MotorInterval.Duration() < minMotorInterval {
		return fmt.Errorf("motor_interval must be at least %s, got %s",
			minMotorInterval, c.MotorInterval.Duration())
	}
	if c.RequestTimeout.Duration() <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout.Duration())
	}

	for id, robot := range c.Robots {
		if robot.Name == "" {
			return fmt.Errorf("robots[%s]: name is required", id)
		}
		if robot.IP != "" && net.ParseIP(robot.IP) == nil {
			return fmt.Errorf("robots[%s] (%s): invalid ip %q", id, robot.Name, robot.IP)
		}
	}

	return nil
}
