package main

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// robotSim holds the evolving state of one simulated robot.
type robotSim struct {
	name      string
	hasMotors bool
	online    bool
	battery   float64
	charging  bool
	cleaning  bool
	estop     bool
	phase     float64
}

// MockFleet simulates a fleet API serving /api/robot-status.
//
// Motor values drift smoothly between requests so the fast loop has
// something to show; robots occasionally drop offline for a while.
type MockFleet struct {
	mu     sync.Mutex
	rng    *rand.Rand
	robots []*robotSim
}

// NewMockFleet creates a fleet of three simulated robots.
func NewMockFleet() *MockFleet {
	return &MockFleet{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		robots: []*robotSim{
			{name: "base1", hasMotors: true, online: true, battery: 87, cleaning: true},
			{name: "base-b2", hasMotors: true, online: true, battery: 42, charging: true},
			{name: "cart1", online: true, battery: 63},
		},
	}
}

// Handler returns the HTTP handler for the mock fleet API.
func (f *MockFleet) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/robot-status", f.handleRobotStatus).Methods(http.MethodGet)
	return r
}

func (f *MockFleet) handleRobotStatus(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")

	f.mu.Lock()
	f.step()
	var resp map[string]any
	switch kind {
	case "motor":
		resp = map[string]any{
			"ping_status": f.pingStatus(),
			"motor_data":  f.motorData(),
		}
	default:
		resp = map[string]any{
			"ping_status":            f.pingStatus(),
			"robot_status":           f.robotStatus(),
			"cleaning_device_status": f.deviceStatus(),
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// step advances the simulation: battery drain, motor phase, and a small
// chance of a robot toggling its online state.
func (f *MockFleet) step() {
	for _, r := range f.robots {
		if f.rng.Float64() < 0.005 {
			r.online = !r.online
			slog.Info("connectivity change", "robot", r.name, "online", r.online)
		}
		if !r.online {
			continue
		}
		if r.charging {
			r.battery = math.Min(100, r.battery+0.02)
		} else {
			r.battery = math.Max(0, r.battery-0.01)
		}
		r.phase += 0.1 + f.rng.Float64()*0.05
	}
}

func (f *MockFleet) pingStatus() map[string]bool {
	out := make(map[string]bool, len(f.robots))
	for _, r := range f.robots {
		out[r.name] = r.online
	}
	return out
}

func (f *MockFleet) robotStatus() map[string]any {
	out := make(map[string]any)
	for _, r := range f.robots {
		if !r.online {
			continue
		}
		out[r.name] = map[string]any{
			"working_status":     "",
			"battery_soc":        math.Round(r.battery*10) / 10,
			"is_charging":        r.charging,
			"is_cleaning":        r.cleaning,
			"is_navigating":      false,
			"soft_estop_engaged": r.estop,
		}
	}
	return out
}

func (f *MockFleet) deviceStatus() map[string]any {
	out := make(map[string]any)
	for _, r := range f.robots {
		if !r.online || !r.cleaning {
			continue
		}
		out[r.name] = map[string]any{
			"rear":  1.2 + f.rng.Float64()*0.3,
			"front": 0.9 + f.rng.Float64()*0.3,
		}
	}
	return out
}

func (f *MockFleet) motorData() map[string]any {
	out := make(map[string]any)
	for _, r := range f.robots {
		if !r.online || !r.hasMotors {
			continue
		}
		out[r.name] = map[string]any{
			"motor1": f.channel(r.phase),
			"motor2": f.channel(r.phase + math.Pi),
		}
	}
	return out
}

func (f *MockFleet) channel(phase float64) map[string]any {
	vel := 120 * math.Sin(phase)
	return map[string]any{
		"pos_rad":    phase,
		"pos_offset": 0.01 * math.Sin(phase/7),
		"vel_rpm":    vel,
		"vel_rad":    vel * 2 * math.Pi / 60,
		"current":    math.Abs(vel)/60 + f.rng.Float64()*0.2,
	}
}

// StartMockFleet runs the mock fleet API on addr.
// Call this in a goroutine before starting the watcher.
func StartMockFleet(addr string) {
	fleet := NewMockFleet()
	if err := http.ListenAndServe(addr, fleet.Handler()); err != nil {
		slog.Error("mock fleet error", "error", err)
	}
}
