package safety

import (
	"math"

	"github.com/hdrlab/linstage/pkg/stage"
)

// Direction is the sign of commanded velocity.
type Direction int8

const (
	// Negative is travel toward Min.
	Negative Direction = -1

	// None means no open-ended motion is commanded.
	None Direction = 0

	// Positive is travel toward Max.
	Positive Direction = 1
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case Negative:
		return "NEGATIVE"
	case None:
		return "NONE"
	case Positive:
		return "POSITIVE"
	default:
		return "UNKNOWN"
	}
}

// DirectionOf returns the direction of travel for velocity v.
func DirectionOf(v float64) Direction {
	switch {
	case v > 0:
		return Positive
	case v < 0:
		return Negative
	default:
		return None
	}
}

// Decision is the outcome of a boundary check.
type Decision uint8

const (
	// Continue lets the motion proceed.
	Continue Decision = iota

	// StopRequired asks for an immediate halt.
	StopRequired
)

// String returns a human-readable decision name.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "CONTINUE"
	case StopRequired:
		return "STOP_REQUIRED"
	default:
		return "UNKNOWN"
	}
}

// ClampPosition bounds target to limits. NaN maps to limits.Min.
func ClampPosition(target float64, limits stage.Limits) float64 {
	if math.IsNaN(target) {
		return limits.Min
	}
	return math.Max(limits.Min, math.Min(target, limits.Max))
}

// ClampVelocity caps the magnitude of requested at maxVelocity, preserving sign.
// NaN maps to zero.
func ClampVelocity(requested, maxVelocity float64) float64 {
	if math.IsNaN(requested) || requested == 0 {
		return 0
	}
	limit := math.Abs(maxVelocity)
	if math.Abs(requested) <= limit {
		return requested
	}
	return math.Copysign(limit, requested)
}

// LimitFor returns the limit that travel in dir approaches.
func LimitFor(limits stage.Limits, dir Direction) float64 {
	if dir == Negative {
		return limits.Min
	}
	return limits.Max
}

// AtBoundary reports whether position sits at or beyond the limit in dir.
func AtBoundary(position float64, limits stage.Limits, dir Direction) bool {
	switch dir {
	case Negative:
		return position <= limits.Min
	case Positive:
		return position >= limits.Max
	default:
		return false
	}
}

// CheckBoundary decides whether an in-progress velocity move must halt.
func CheckBoundary(snapshot stage.Snapshot, limits stage.Limits, dir Direction) Decision {
	if AtBoundary(snapshot.Position, limits, dir) {
		return StopRequired
	}
	return Continue
}

// Clamped reports whether a clamp changed the requested value.
func Clamped(requested, applied float64) bool {
	return requested != applied
}
