package stage

import "time"

// Snapshot is an immutable capture of the stage's physical state.
//
// Snapshots are produced by the sampler only. Each sample publishes a new
// Snapshot value; a published Snapshot is never modified.
type Snapshot struct {
	// Position in mm.
	Position float64

	// Velocity in mm/s.
	Velocity float64

	// IsMoving reports whether the axis was busy when sampled.
	IsMoving bool

	// IsHomed reports the controller's last known homing result at sample time.
	IsHomed bool

	// Timestamp is when the sample was taken. It carries a monotonic clock
	// reading, so Sub and Since between snapshots are immune to wall clock steps.
	Timestamp time.Time

	// Seq is the sample ordinal within a sampler run, starting at 1.
	Seq uint64

	// Known is false only for the sentinel returned before any sample exists.
	Known bool
}

// UnknownSnapshot returns the sentinel snapshot reported before the first sample.
func UnknownSnapshot() Snapshot {
	return Snapshot{}
}

// Age returns the time elapsed since the sample was taken.
// The sentinel reports zero.
func (s Snapshot) Age() time.Duration {
	if !s.Known {
		return 0
	}
	return time.Since(s.Timestamp)
}
