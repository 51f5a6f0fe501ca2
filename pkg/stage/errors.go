package stage

import (
	"errors"
	"fmt"
)

// Error taxonomy.
var (
	// ErrConnection indicates the backend is unreachable or the port is invalid.
	ErrConnection = errors.New("connection error")

	// ErrBackend indicates a transient or fatal driver fault.
	ErrBackend = errors.New("backend error")

	// ErrTimeout indicates a bounded wait was exceeded.
	ErrTimeout = errors.New("timeout")

	// ErrConfig indicates invalid limits or rate at construction.
	ErrConfig = errors.New("invalid configuration")

	// ErrNotConnected indicates a command that needs a session was issued without one.
	ErrNotConnected = errors.New("not connected")

	// ErrInvalidState indicates the command is not valid in the current control state.
	ErrInvalidState = errors.New("invalid state for command")

	// ErrInvalidArgument indicates a non-finite command value.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAborted indicates an operation was cancelled by a stop or disconnect.
	ErrAborted = errors.New("operation aborted")
)

// SafetyViolation records a command value that was clamped into the safe range.
// It is informational: the command still succeeds with the Applied value.
type SafetyViolation struct {
	// Field names the clamped quantity ("position" or "velocity").
	Field string

	// Requested is the value the caller asked for.
	Requested float64

	// Applied is the value sent to the backend.
	Applied float64
}

// Error implements error so a violation can travel through error-typed sinks.
func (v SafetyViolation) Error() string {
	return fmt.Sprintf("%s clamped: requested %.4f, applied %.4f", v.Field, v.Requested, v.Applied)
}
