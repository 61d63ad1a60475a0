package telemetry

import (
	"encoding/json"
	"testing"
	"time"
)

// TestEstopState_DecodeUnion verifies the wire union: the API reports
// soft_estop_engaged as a boolean or as a trigger reason string.
func TestEstopState_DecodeUnion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    EstopState
		wantErr bool
	}{
		{"false boolean", `false`, EstopState{}, false},
		{"true boolean", `true`, EstopState{Engaged: true}, false},
		{"button reason", `"Button pressed"`, EstopState{Engaged: true, Reason: "Button pressed"}, false},
		{"bumper reason", `"Front bumper hit"`, EstopState{Engaged: true, Reason: "Front bumper hit"}, false},
		{"empty string not engaged", `""`, EstopState{}, false},
		{"number rejected", `7`, EstopState{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got EstopState
			err := json.Unmarshal([]byte(tt.payload), &got)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for payload %s", tt.payload)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("decoded %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStatusRecord_DecodeFull(t *testing.T) {
	payload := `{
		"working_status": "cleaning",
		"battery_soc": 87.5,
		"is_charging": false,
		"is_cleaning": true,
		"is_navigating": false,
		"soft_estop_engaged": "Button pressed",
		"watch_doggo_error_rm": [
			{"error_code": "1201", "message": "motor error"},
			{"error_code": "1416"}
		]
	}`

	var rec StatusRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if rec.BatterySOC != 87.5 || !rec.IsCleaning {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.SoftEstopEngaged.Engaged || rec.SoftEstopEngaged.Reason != "Button pressed" {
		t.Errorf("unexpected estop state: %+v", rec.SoftEstopEngaged)
	}
	if len(rec.WatchdogErrors) != 2 || rec.WatchdogErrors[0].ErrorCode != "1201" {
		t.Errorf("unexpected watchdog errors: %+v", rec.WatchdogErrors)
	}
}

// TestSnapshot_CloneIsDeep verifies that mutating a clone cannot reach back
// into the original snapshot, including through pointer-valued fields.
func TestSnapshot_CloneIsDeep(t *testing.T) {
	current := 0.338
	errMsg := "fetch failed"
	orig := Snapshot{
		Connectivity: map[string]bool{"base1": true},
		RobotStatus: map[string]StatusRecord{
			"base1": {WorkingStatus: "idle", WatchdogErrors: []WatchdogError{{ErrorCode: "1201"}}},
		},
		DeviceStatus: map[string]DeviceRecord{
			"base1": {RearBrushCurrent: &current},
		},
		MotorData: map[string]MotorRecord{
			"base1": {Motor1: MotorChannel{Current: &current}},
		},
		LastUpdatedAt: time.Now(),
		LastError:     &errMsg,
	}

	cp := orig.Clone()

	cp.Connectivity["base1"] = false
	cp.RobotStatus["base1"] = StatusRecord{WorkingStatus: "mutated"}
	*cp.MotorData["base1"].Motor1.Current = 99
	*cp.DeviceStatus["base1"].RearBrushCurrent = 99
	*cp.LastError = "mutated"

	if !orig.Connectivity["base1"] {
		t.Error("clone shares connectivity map with original")
	}
	if orig.RobotStatus["base1"].WorkingStatus != "idle" {
		t.Error("clone shares robot status map with original")
	}
	if *orig.MotorData["base1"].Motor1.Current != 0.338 {
		t.Error("clone shares motor channel pointers with original")
	}
	if *orig.DeviceStatus["base1"].RearBrushCurrent != 0.338 {
		t.Error("clone shares device record pointers with original")
	}
	if *orig.LastError != "fetch failed" {
		t.Error("clone shares error pointer with original")
	}
}
