package log

import "time"

// Event represents a stage event captured by the controller or sampler.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the backend session (UUID, assigned per connect).
	SessionID string `cbor:"2,keyasint,omitempty"`

	// Source is the component that emitted the event.
	Source Source `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// Port is the device port of the session.
	Port string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Command     *CommandEvent     `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Boundary    *BoundaryEvent    `cbor:"12,keyasint,omitempty"`
	Clamp       *ClampEvent       `cbor:"13,keyasint,omitempty"`
	Sampler     *SamplerEvent     `cbor:"14,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"15,keyasint,omitempty"`
}

// Source indicates which component emitted an event.
type Source uint8

const (
	// SourceController is the stage controller's command path.
	SourceController Source = 0
	// SourceSampler is the background sampling loop.
	SourceSampler Source = 1
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceController:
		return "CONTROLLER"
	case SourceSampler:
		return "SAMPLER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryCommand indicates a command and its outcome.
	CategoryCommand Category = 0
	// CategoryState indicates a control state transition.
	CategoryState Category = 1
	// CategoryBoundary indicates a boundary-triggered stop.
	CategoryBoundary Category = 2
	// CategorySafety indicates an informational safety clamp.
	CategorySafety Category = 3
	// CategorySampler indicates sampler lifecycle or health.
	CategorySampler Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryCommand:
		return "COMMAND"
	case CategoryState:
		return "STATE"
	case CategoryBoundary:
		return "BOUNDARY"
	case CategorySafety:
		return "SAFETY"
	case CategorySampler:
		return "SAMPLER"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseCategory returns the category with the given name.
func ParseCategory(name string) (Category, bool) {
	for c := CategoryCommand; c <= CategoryError; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// CommandEvent captures a command issued to the backend.
type CommandEvent struct {
	// Op is the command.
	Op Op `cbor:"1,keyasint"`

	// Origin distinguishes caller commands from internally raised ones.
	Origin Origin `cbor:"2,keyasint"`

	// Requested is the caller's value (moves and velocities only).
	Requested *float64 `cbor:"3,keyasint,omitempty"`

	// Applied is the value sent to the backend after clamping.
	Applied *float64 `cbor:"4,keyasint,omitempty"`

	// Success reports the command outcome.
	Success bool `cbor:"5,keyasint"`

	// Duration is how long the backend call took.
	// Stored as nanoseconds.
	Duration *time.Duration `cbor:"6,keyasint,omitempty"`

	// Err is the failure message (if any).
	Err string `cbor:"7,keyasint,omitempty"`
}

// Op identifies a controller command.
type Op uint8

const (
	OpConnect     Op = 0
	OpDisconnect  Op = 1
	OpHome        Op = 2
	OpMoveTo      Op = 3
	OpSetVelocity Op = 4
	OpStop        Op = 5
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpConnect:
		return "CONNECT"
	case OpDisconnect:
		return "DISCONNECT"
	case OpHome:
		return "HOME"
	case OpMoveTo:
		return "MOVE_TO"
	case OpSetVelocity:
		return "SET_VELOCITY"
	case OpStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Origin indicates who raised a command.
type Origin uint8

const (
	// OriginCaller is a command from the public API.
	OriginCaller Origin = 0
	// OriginBoundary is a stop raised by a boundary detection.
	OriginBoundary Origin = 1
	// OriginFault is a stop raised while handling a sampler fault.
	OriginFault Origin = 2
)

// String returns the origin name.
func (o Origin) String() string {
	switch o {
	case OriginCaller:
		return "CALLER"
	case OriginBoundary:
		return "BOUNDARY"
	case OriginFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a control state transition.
type StateChangeEvent struct {
	// OldState is the previous state.
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// BoundaryEvent captures a boundary detection during velocity motion.
type BoundaryEvent struct {
	// Position is the sampled position that reached the limit.
	Position float64 `cbor:"1,keyasint"`

	// Limit is the limit that was reached.
	Limit float64 `cbor:"2,keyasint"`

	// Direction is the commanded direction (-1 or 1).
	Direction int8 `cbor:"3,keyasint"`

	// Seq is the ordinal of the triggering sample.
	Seq uint64 `cbor:"4,keyasint,omitempty"`
}

// ClampEvent captures a requested value that was clamped.
type ClampEvent struct {
	Field     string  `cbor:"1,keyasint"`
	Requested float64 `cbor:"2,keyasint"`
	Applied   float64 `cbor:"3,keyasint"`
}

// SamplerEvent captures sampler lifecycle and health.
type SamplerEvent struct {
	// Kind of sampler event.
	Kind SamplerEventKind `cbor:"1,keyasint"`

	// RateHz is the effective sampling rate.
	RateHz float64 `cbor:"2,keyasint,omitempty"`

	// Failures is the consecutive read failure count.
	Failures int `cbor:"3,keyasint,omitempty"`

	// Samples is the number of samples taken so far.
	Samples uint64 `cbor:"4,keyasint,omitempty"`
}

// SamplerEventKind indicates the type of sampler event.
type SamplerEventKind uint8

const (
	SamplerStarted      SamplerEventKind = 0
	SamplerStopped      SamplerEventKind = 1
	SamplerRateDegraded SamplerEventKind = 2
	SamplerReadFailed   SamplerEventKind = 3
	SamplerFault        SamplerEventKind = 4
)

// String returns the sampler event kind name.
func (k SamplerEventKind) String() string {
	switch k {
	case SamplerStarted:
		return "STARTED"
	case SamplerStopped:
		return "STOPPED"
	case SamplerRateDegraded:
		return "RATE_DEGRADED"
	case SamplerReadFailed:
		return "READ_FAILED"
	case SamplerFault:
		return "FAULT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}

// Float returns a pointer to v, for the optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
