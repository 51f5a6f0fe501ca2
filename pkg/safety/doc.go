// Package safety implements the software safety guard for a linear stage.
//
// The guard is stateless and deterministic. It never fails: out-of-range
// commands are clamped silently, and callers that care compare the requested
// value with the result (see Clamped).
//
// # Position Clamp
//
// Absolute move targets are bounded to the configured [Min, Max] window.
// In-range targets pass through unchanged.
//
// # Velocity Clamp
//
// Velocity commands keep their sign; the magnitude is capped at the configured
// maximum. Zero stays zero.
//
// # Boundary Check
//
// During open-ended velocity motion the sampler evaluates CheckBoundary on every
// sample. A stop is required once the sampled position reaches or crosses the
// limit in the direction of travel:
//
//	position <= Min while moving negative
//	position >= Max while moving positive
//
// Moving away from a limit the stage already sits beyond is allowed, so an
// operator can always drive back into the window.
package safety
