package telemetry

import (
	"encoding/json"
	"fmt"
	"time"
)

// MotorChannel holds the readings reported for a single motor.
//
// All fields are optional: a nil pointer means the reading was absent from
// the payload, which is distinct from a reading of zero.
type MotorChannel struct {
	// PosRad is the accumulated motor position in radians.
	PosRad *float64 `json:"pos_rad,omitempty"`

	// PosOffset is the calibration offset applied to PosRad.
	PosOffset *float64 `json:"pos_offset,omitempty"`

	// VelRPM is the motor velocity in revolutions per minute.
	VelRPM *float64 `json:"vel_rpm,omitempty"`

	// VelRad is the motor velocity in radians per second.
	VelRad *float64 `json:"vel_rad,omitempty"`

	// Current is the motor current draw in amperes.
	Current *float64 `json:"current,omitempty"`
}

// Clone returns a deep copy of the channel.
func (c MotorChannel) Clone() MotorChannel {
	return MotorChannel{
		PosRad:    cloneFloat(c.PosRad),
		PosOffset: cloneFloat(c.PosOffset),
		VelRPM:    cloneFloat(c.VelRPM),
		VelRad:    cloneFloat(c.VelRad),
		Current:   cloneFloat(c.Current),
	}
}

// MotorRecord holds the readings for both motors of a robot base.
type MotorRecord struct {
	Motor1 MotorChannel `json:"motor1"`
	Motor2 MotorChannel `json:"motor2"`
}

// Clone returns a deep copy of the record.
func (r MotorRecord) Clone() MotorRecord {
	return MotorRecord{
		Motor1: r.Motor1.Clone(),
		Motor2: r.Motor2.Clone(),
	}
}

// EstopState represents the soft_estop_engaged field of a status payload.
//
// The fleet API reports this field as either a boolean or, when the base
// reported a specific trigger, a reason string such as "Button pressed" or
// "Front bumper hit". EstopState decodes both forms: a string is an engaged
// estop with a reason.
type EstopState struct {
	// Engaged reports whether the soft estop is currently engaged.
	Engaged bool

	// Reason is the trigger description, if the API reported one.
	// Empty when the field was a plain boolean.
	Reason string
}

// UnmarshalJSON implements json.Unmarshaler, accepting bool or string.
func (e *EstopState) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*e = EstopState{Engaged: b}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*e = EstopState{Engaged: s != "", Reason: s}
		return nil
	}

	return fmt.Errorf("soft_estop_engaged: expected bool or string, got %s", data)
}

// MarshalJSON implements json.Marshaler, preserving the wire union.
func (e EstopState) MarshalJSON() ([]byte, error) {
	if e.Reason != "" {
		return json.Marshal(e.Reason)
	}
	return json.Marshal(e.Engaged)
}

// WatchdogError is a single entry of the watch_doggo_error_rm sequence.
//
// Only the error code is interpreted; the remaining payload fields are
// preserved so consumers can surface them verbatim.
type WatchdogError struct {
	// ErrorCode is the numeric error code as reported, e.g. "1201".
	ErrorCode string `json:"error_code"`

	// Message is the human-readable description, when present.
	Message string `json:"message,omitempty"`
}

// StatusRecord holds the general status of a single robot.
type StatusRecord struct {
	// WorkingStatus is the activity string reported by the base.
	WorkingStatus string `json:"working_status"`

	// BatterySOC is the battery state of charge in percent.
	BatterySOC float64 `json:"battery_soc"`

	// IsCharging reports whether the base is docked and charging.
	IsCharging bool `json:"is_charging"`

	// IsCleaning reports whether a cleaning run is in progress.
	IsCleaning bool `json:"is_cleaning"`

	// IsNavigating reports whether the base is navigating to a goal.
	IsNavigating bool `json:"is_navigating"`

	// SoftEstopEngaged is the soft estop state, possibly with a reason.
	SoftEstopEngaged EstopState `json:"soft_estop_engaged"`

	// WatchdogErrors is the ordered watchdog error sequence, oldest first.
	WatchdogErrors []WatchdogError `json:"watch_doggo_error_rm,omitempty"`
}

// Clone returns a deep copy of the record.
func (r StatusRecord) Clone() StatusRecord {
	cp := r
	if r.WatchdogErrors != nil {
		cp.WatchdogErrors = append([]WatchdogError(nil), r.WatchdogErrors...)
	}
	return cp
}

// DeviceRecord holds the cleaning device status of a single robot:
// the roller brush current draws in amperes.
type DeviceRecord struct {
	// RearBrushCurrent is the rear roller brush current, if reported.
	RearBrushCurrent *float64 `json:"rear,omitempty"`

	// FrontBrushCurrent is the front roller brush current, if reported.
	FrontBrushCurrent *float64 `json:"front,omitempty"`
}

// Clone returns a deep copy of the record.
func (r DeviceRecord) Clone() DeviceRecord {
	return DeviceRecord{
		RearBrushCurrent:  cloneFloat(r.RearBrushCurrent),
		FrontBrushCurrent: cloneFloat(r.FrontBrushCurrent),
	}
}

// Snapshot is the latest merged view of the fleet, keyed by robot id.
//
// Snapshots are value types produced by [Snapshot.Clone]; consumers receive
// copies and can never mutate the store's internal state through one.
type Snapshot struct {
	// Connectivity maps robot id to reachability.
	Connectivity map[string]bool `json:"ping_status"`

	// RobotStatus maps robot id to its last general status.
	RobotStatus map[string]StatusRecord `json:"robot_status"`

	// DeviceStatus maps robot id to its last cleaning device status.
	DeviceStatus map[string]DeviceRecord `json:"cleaning_device_status"`

	// MotorData maps robot id to its last motor readings.
	MotorData map[string]MotorRecord `json:"motor_data"`

	// LastUpdatedAt is the time of the most recent successful merge.
	LastUpdatedAt time.Time `json:"last_updated_at"`

	// LastError is the most recent general-status fetch error, if the
	// last general cycle failed. nil once a general fetch succeeds again.
	// Motor-only fetch failures never populate this field.
	LastError *string `json:"last_error"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	cp := Snapshot{
		Connectivity:  make(map[string]bool, len(s.Connectivity)),
		RobotStatus:   make(map[string]StatusRecord, len(s.RobotStatus)),
		DeviceStatus:  make(map[string]DeviceRecord, len(s.DeviceStatus)),
		MotorData:     make(map[string]MotorRecord, len(s.MotorData)),
		LastUpdatedAt: s.LastUpdatedAt,
	}
	for id, v := range s.Connectivity {
		cp.Connectivity[id] = v
	}
	for id, v := range s.RobotStatus {
		cp.RobotStatus[id] = v.Clone()
	}
	for id, v := range s.DeviceStatus {
		cp.DeviceStatus[id] = v.Clone()
	}
	for id, v := range s.MotorData {
		cp.MotorData[id] = v.Clone()
	}
	if s.LastError != nil {
		msg := *s.LastError
		cp.LastError = &msg
	}
	return cp
}

// UpdateClass identifies which data class an update touched.
type UpdateClass string

const (
	// UpdateGeneral marks a merged general-status update
	// (connectivity, robot status, device status).
	UpdateGeneral UpdateClass = "general"

	// UpdateMotor marks a merged motor telemetry update.
	UpdateMotor UpdateClass = "motor"

	// UpdateError marks a visible general-status fetch failure.
	// No data was merged and no update key advanced.
	UpdateError UpdateClass = "error"
)

// UpdateKeys are monotonic counters, one per robot-independent data class.
//
// A key increments by exactly 1 per successfully merged update of its class
// and never moves on a failed fetch, so a consumer can detect freshness by
// comparing keys instead of deep-comparing snapshots.
type UpdateKeys struct {
	// General counts merged general-status updates.
	General uint64 `json:"general"`

	// Motor counts merged motor telemetry updates.
	Motor uint64 `json:"motor"`
}

// Update is the notification emitted after the store changes.
type Update struct {
	// Class identifies what changed.
	Class UpdateClass

	// Keys are the update keys after the change.
	Keys UpdateKeys

	// At is when the change was applied.
	At time.Time
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	f := *v
	return &f
}
