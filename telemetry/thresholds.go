package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Zero-value epsilons by display context.
//
// The thresholds intentionally differ per call site: the connectivity
// indicator needs the finest granularity, the summary banner coarser, and
// the per-motor detail view coarser still. Callers pass the epsilon they
// need explicitly rather than relying on a single module-wide value.
const (
	// EpsilonIndicator is the zero threshold for connectivity and
	// activity indicators.
	EpsilonIndicator = 0.0001

	// EpsilonSummary is the zero threshold for the fleet summary banner.
	EpsilonSummary = 0.001

	// EpsilonDetail is the zero threshold for the per-motor detail view.
	EpsilonDetail = 0.01
)

// Sentinel strings returned by [FormatValue].
const (
	// ValueUnavailable is rendered for absent readings.
	ValueUnavailable = "N/A"

	// ValueInvalid is rendered for non-numeric input.
	ValueInvalid = "invalid"
)

// ReadingKind identifies the physical quantity of a motor reading, used to
// pick the abnormality ceiling in [IsAbnormal].
type ReadingKind string

const (
	// ReadingCurrent is a motor current draw in amperes.
	ReadingCurrent ReadingKind = "current"

	// ReadingVelocity is a motor velocity in RPM.
	ReadingVelocity ReadingKind = "velocity"

	// ReadingPosition is an accumulated motor position in radians.
	ReadingPosition ReadingKind = "position"
)

// Abnormality ceilings per reading kind. Exceeding a ceiling drives display
// emphasis only; abnormal data is still accepted and merged.
const (
	maxNormalCurrent  = 5.0
	maxNormalVelocity = 1000.0
	maxNormalPosition = 100000.0
)

// IsZeroValue reports whether a reading is absent or has magnitude strictly
// below epsilon. A magnitude exactly equal to epsilon counts as non-zero.
func IsZeroValue(v *float64, epsilon float64) bool {
	if v == nil {
		return true
	}
	return math.Abs(*v) < epsilon
}

// AreAllChannelsZero reports whether every tracked reading (pos_rad,
// vel_rpm, current) on both motors is zero under the given epsilon.
// Absent readings count as zero.
func AreAllChannelsZero(r MotorRecord, epsilon float64) bool {
	for _, ch := range []MotorChannel{r.Motor1, r.Motor2} {
		if !IsZeroValue(ch.PosRad, epsilon) {
			return false
		}
		if !IsZeroValue(ch.VelRPM, epsilon) {
			return false
		}
		if !IsZeroValue(ch.Current, epsilon) {
			return false
		}
	}
	return true
}

// IsAbnormal reports whether a reading exceeds the fixed ceiling for its
// kind: current above 5 A, velocity magnitude above 1000 RPM, or position
// magnitude above 100000 rad. Unknown kinds are never abnormal.
func IsAbnormal(value float64, kind ReadingKind) bool {
	switch kind {
	case ReadingCurrent:
		return value > maxNormalCurrent
	case ReadingVelocity:
		return math.Abs(value) > maxNormalVelocity
	case ReadingPosition:
		return math.Abs(value) > maxNormalPosition
	default:
		return false
	}
}

// FormatValue renders a reading for display.
//
// Magnitudes above 1000 render in normalized exponential form with two
// fractional digits ("1.50e+3"); everything else renders fixed-point with
// three fractional digits ("0.123"). Absent input (nil, or a nil *float64)
// renders as [ValueUnavailable]; non-numeric input as [ValueInvalid].
//
// The input is deliberately loosely typed: readings arrive from decoded
// JSON and may be float64, json.Number, an integer, or a stray string.
func FormatValue(v any) string {
	if p, isPtr := v.(*float64); isPtr && p == nil {
		return ValueUnavailable
	}
	f, ok := toFloat(v)
	switch {
	case v == nil:
		return ValueUnavailable
	case !ok:
		return ValueInvalid
	case math.IsNaN(f) || math.IsInf(f, 0):
		return ValueInvalid
	case math.Abs(f) > 1000:
		return formatExponential(f)
	default:
		return strconv.FormatFloat(f, 'f', 3, 64)
	}
}

// toFloat coerces supported numeric inputs to float64.
// A nil *float64 reports ok=false and is handled as absent by the caller.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	default:
		return 0, false
	}
}

// formatExponential renders v as "d.dde±d" with the exponent's leading
// zeros stripped, matching the upstream display convention
// (1500.4 → "1.50e+3", not "1.50e+03").
func formatExponential(v float64) string {
	s := strconv.FormatFloat(v, 'e', 2, 64)
	idx := strings.IndexByte(s, 'e')
	mantissa, exp := s[:idx], s[idx+1:]

	sign := ""
	if exp[0] == '+' || exp[0] == '-' {
		sign, exp = string(exp[0]), exp[1:]
	}
	exp = strings.TrimLeft(exp, "0")
	if exp == "" {
		exp = "0"
	}
	return mantissa + "e" + sign + exp
}

// WorkingStatus derives the display status of a robot from its connectivity
// and status record, in fixed priority order: Offline, E-Stop Engaged,
// Charging, Cleaning, Navigation, Idle.
func WorkingStatus(r StatusRecord, online bool) string {
	switch {
	case !online:
		return "Offline"
	case r.SoftEstopEngaged.Engaged:
		return "E-Stop Engaged"
	case r.IsCharging:
		return "Charging"
	case r.IsCleaning:
		return "Cleaning"
	case r.IsNavigating:
		return "Navigation"
	default:
		return "Idle"
	}
}
