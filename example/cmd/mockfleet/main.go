// Standalone mock fleet API for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockfleet
//
// Then in another terminal:
//
//	go run ./cmd/fleetwatch watch -c example/config.yaml
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

type robotSim struct {
	name      string
	hasMotors bool
	online    bool
	battery   float64
	charging  bool
	phase     float64
}

func main() {
	fmt.Println("Mock fleet API starting on :9999")
	fmt.Println("Serving /api/robot-status?type=general and ?type=motor")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu     sync.Mutex
		rng    = rand.New(rand.NewSource(time.Now().UnixNano()))
		robots = []*robotSim{
			{name: "base1", hasMotors: true, online: true, battery: 87},
			{name: "base-b2", hasMotors: true, online: true, battery: 42, charging: true},
			{name: "cart1", online: true, battery: 63},
		}
	)

	r := mux.NewRouter()
	r.HandleFunc("/api/robot-status", func(w http.ResponseWriter, req *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		ping := make(map[string]bool)
		for _, rb := range robots {
			if rng.Float64() < 0.005 {
				rb.online = !rb.online
				slog.Info("connectivity change", "robot", rb.name, "online", rb.online)
			}
			rb.phase += 0.1 + rng.Float64()*0.05
			ping[rb.name] = rb.online
		}

		resp := map[string]any{"ping_status": ping}
		if req.URL.Query().Get("type") == "motor" {
			motors := make(map[string]any)
			for _, rb := range robots {
				if !rb.online || !rb.hasMotors {
					continue
				}
				vel := 120 * math.Sin(rb.phase)
				ch := map[string]any{
					"pos_rad": rb.phase,
					"vel_rpm": vel,
					"current": math.Abs(vel)/60 + rng.Float64()*0.2,
				}
				motors[rb.name] = map[string]any{"motor1": ch, "motor2": ch}
			}
			resp["motor_data"] = motors
		} else {
			status := make(map[string]any)
			for _, rb := range robots {
				if !rb.online {
					continue
				}
				status[rb.name] = map[string]any{
					"battery_soc": rb.battery,
					"is_charging": rb.charging,
				}
			}
			resp["robot_status"] = status
			resp["cleaning_device_status"] = map[string]any{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	if err := http.ListenAndServe(":9999", r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
