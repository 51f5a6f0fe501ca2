package sampler

import "github.com/hdrlab/linstage/pkg/safety"

// Mode describes what kind of motion the controller has commanded.
type Mode uint8

const (
	// ModeIdle means no motion command is active.
	ModeIdle Mode = iota

	// ModePosition means an absolute move is in flight.
	ModePosition

	// ModeVelocity means open-ended velocity motion is active.
	ModeVelocity
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "IDLE"
	case ModePosition:
		return "POSITION"
	case ModeVelocity:
		return "VELOCITY"
	default:
		return "UNKNOWN"
	}
}

// Motion is the controller's view of the active command at sample time.
type Motion struct {
	Mode      Mode
	Direction safety.Direction

	// Generation increments with every motion command. Requests raised by
	// the sampler carry it so stale requests can be discarded.
	Generation uint64

	// Homed is copied into each snapshot's IsHomed.
	Homed bool
}

// MotionSource reports the current motion context.
// Implementations are called from the sampling loop and must not block.
type MotionSource interface {
	Motion() Motion
}

// MotionFunc adapts a function to MotionSource.
type MotionFunc func() Motion

// Motion calls f.
func (f MotionFunc) Motion() Motion {
	return f()
}

// idle is used when no MotionSource is configured.
var idle = MotionFunc(func() Motion { return Motion{} })
