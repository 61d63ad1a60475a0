// Package telemetry defines the shared data model for fleet telemetry and
// the pure evaluation functions applied to it.
//
// The types here mirror the wire format served by the fleet API
// (/api/robot-status): connectivity, per-robot status, cleaning device
// status, and dual-channel motor readings. Numeric motor fields are
// pointers, because an absent reading is not the same thing as a zero
// reading: a robot that has never reported a value must not render as a
// robot sitting at zero.
//
// The evaluation functions ([IsZeroValue], [AreAllChannelsZero],
// [IsAbnormal], [FormatValue], [WorkingStatus]) are pure: no state, no IO,
// same inputs always produce the same output. They classify and render
// readings for display; they never gate whether data is accepted.
package telemetry
