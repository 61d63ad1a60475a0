package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
base_url: http://localhost:8000
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// check defaults applied
	if cfg.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8000")
	}
	if cfg.GeneralInterval.Duration() != 5*time.Second {
		t.Errorf("GeneralInterval = %v, want 5s", cfg.GeneralInterval.Duration())
	}
	if cfg.MotorInterval.Duration() != 1*time.Second {
		t.Errorf("MotorInterval = %v, want 1s", cfg.MotorInterval.Duration())
	}
	if cfg.RequestTimeout.Duration() != 10*time.Second {
		t.Errorf("RequestTimeout = %v, want 10s", cfg.RequestTimeout.Duration())
	}
	if cfg.UseBackgroundPoller != nil {
		t.Errorf("UseBackgroundPoller = %v, want nil (unset)", *cfg.UseBackgroundPoller)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
base_url: https://fleet.example.com:8000
general_interval: 10s
motor_interval: 500ms
request_timeout: 3s
use_background_poller: false

robots:
  base1:
    name: base1
    ip: 192.168.1.101
    has_motors: true
  base-b2:
    name: base-b2
    ip: 192.168.1.114
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.GeneralInterval.Duration() != 10*time.Second {
		t.Errorf("GeneralInterval = %v, want 10s", cfg.GeneralInterval.Duration())
	}
	if cfg.MotorInterval.Duration() != 500*time.Millisecond {
		t.Errorf("MotorInterval = %v, want 500ms", cfg.MotorInterval.Duration())
	}
	if cfg.RequestTimeout.Duration() != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.RequestTimeout.Duration())
	}
	if cfg.UseBackgroundPoller == nil || *cfg.UseBackgroundPoller {
		t.Errorf("UseBackgroundPoller = %v, want false", cfg.UseBackgroundPoller)
	}

	if len(cfg.Robots) != 2 {
		t.Fatalf("len(Robots) = %d, want 2", len(cfg.Robots))
	}
	r := cfg.Robots["base1"]
	if r.Name != "base1" {
		t.Errorf("Robots[base1].Name = %q, want %q", r.Name, "base1")
	}
	if r.IP != "192.168.1.101" {
		t.Errorf("Robots[base1].IP = %q, want %q", r.IP, "192.168.1.101")
	}
	if !r.HasMotors {
		t.Error("Robots[base1].HasMotors = false, want true")
	}
	if cfg.Robots["base-b2"].HasMotors {
		t.Error("Robots[base-b2].HasMotors = true, want false")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("base_url: [unclosed"))
	if err == nil {
		t.Fatal("Parse() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %v, want mention of parse failure", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing base_url",
			yaml:    `general_interval: 5s`,
			wantErr: "base_url is required",
		},
		{
			name:    "bad scheme",
			yaml:    `base_url: ftp://fleet:8000`,
			wantErr: "scheme must be http or https",
		},
		{
			name: "general interval too small",
			yaml: `
base_url: http://localhost:8000
general_interval: 100ms
`,
			wantErr: "general_interval must be at least",
		},
		{
			name: "motor interval too small",
			yaml: `
base_url: http://localhost:8000
motor_interval: 1ms
`,
			wantErr: "motor_interval must be at least",
		},
		{
			name: "invalid duration string",
			yaml: `
base_url: http://localhost:8000
general_interval: fast
`,
			wantErr: "invalid duration",
		},
		{
			name: "robot missing name",
			yaml: `
base_url: http://localhost:8000
robots:
  base1:
    ip: 192.168.1.101
`,
			wantErr: "name is required",
		},
		{
			name: "robot invalid ip",
			yaml: `
base_url: http://localhost:8000
robots:
  base1:
    name: base1
    ip: not-an-ip
`,
			wantErr: "invalid ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_RobotWithoutIP(t *testing.T) {
	// ip is optional; only validated when present
	yaml := `
base_url: http://localhost:8000
robots:
  sim1:
    name: sim1
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Robots["sim1"].IP != "" {
		t.Errorf("IP = %q, want empty", cfg.Robots["sim1"].IP)
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	t.Setenv("FLEET_TEST_HOST", "fleet.internal")

	yaml := `
base_url: http://${FLEET_TEST_HOST}:8000
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BaseURL != "http://fleet.internal:8000" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://fleet.internal:8000")
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	os.Unsetenv("FLEET_TEST_MISSING")

	yaml := `
base_url: http://${FLEET_TEST_MISSING:-localhost}:8000
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8000")
	}
}

func TestParse_EnvVarMissingNoDefault(t *testing.T) {
	os.Unsetenv("FLEET_TEST_MISSING")

	yaml := `
base_url: http://${FLEET_TEST_MISSING}:8000
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() error = nil, want missing env var error")
	}
	if !strings.Contains(err.Error(), "FLEET_TEST_MISSING") {
		t.Errorf("error = %v, want mention of FLEET_TEST_MISSING", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CFG_SET", "value1")
	os.Unsetenv("CFG_UNSET")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "no vars", input: "plain string", want: "plain string"},
		{name: "set var", input: "${CFG_SET}", want: "value1"},
		{name: "set var with default", input: "${CFG_SET:-fallback}", want: "value1"},
		{name: "unset var with default", input: "${CFG_UNSET:-fallback}", want: "fallback"},
		{name: "unset var no default", input: "${CFG_UNSET}", wantErr: true},
		{name: "embedded", input: "http://${CFG_SET}:8000/api", want: "http://value1:8000/api"},
		{name: "multiple", input: "${CFG_SET}-${CFG_SET}", want: "value1-value1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expandEnvVars(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetwatch.yaml")
	content := `
base_url: http://localhost:8000
motor_interval: 250ms
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MotorInterval.Duration() != 250*time.Millisecond {
		t.Errorf("MotorInterval = %v, want 250ms", cfg.MotorInterval.Duration())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/fleetwatch.yaml")
	if err == nil {
		t.Fatal("Load() error = nil, want read error")
	}
	if !strings.Contains(err.Error(), "read config file") {
		t.Errorf("error = %v, want mention of read failure", err)
	}
}
