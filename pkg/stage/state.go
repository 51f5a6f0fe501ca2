package stage

// State is the controller's control state.
type State uint8

const (
	// StateDisconnected indicates no backend session.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an open session without a homing reference.
	StateConnected

	// StateHoming indicates a homing operation is in progress.
	StateHoming

	// StateHomed indicates an open, referenced session at rest.
	StateHomed

	// StateMoving indicates a position or velocity command is active.
	StateMoving

	// StateStopping indicates a halt is being issued.
	StateStopping

	// StateError indicates a fault; the reason is reported separately.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateHoming:
		return "HOMING"
	case StateHomed:
		return "HOMED"
	case StateMoving:
		return "MOVING"
	case StateStopping:
		return "STOPPING"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// HasSession reports whether a backend session is expected to be open in s.
func (s State) HasSession() bool {
	switch s {
	case StateConnected, StateHoming, StateHomed, StateMoving, StateStopping:
		return true
	default:
		return false
	}
}
