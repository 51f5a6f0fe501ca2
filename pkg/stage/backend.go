package stage

import (
	"context"
	"io"
)

// Reading is one raw sample from the backend.
type Reading struct {
	Position float64
	Velocity float64
	Moving   bool
}

// Session is an open backend connection. Close releases it.
type Session interface {
	io.Closer
}

// Backend is the vendor driver abstraction.
//
// Every method receives a context carrying the caller's deadline; blocking
// implementations must return once it is done. Implementations must allow
// ReadPosition to be called concurrently with the command methods on the same
// session.
type Backend interface {
	// Connect opens a session on port.
	Connect(ctx context.Context, port string) (Session, error)

	// Home runs the homing sequence and returns once it completes.
	Home(ctx context.Context, s Session) error

	// MoveAbsolute starts a move to positionMm and returns once dispatched.
	MoveAbsolute(ctx context.Context, s Session, positionMm float64) error

	// SetVelocity starts continuous motion at velocityMmS.
	SetVelocity(ctx context.Context, s Session, velocityMmS float64) error

	// Stop halts motion immediately.
	Stop(ctx context.Context, s Session) error

	// ReadPosition samples position, velocity and motion status.
	ReadPosition(ctx context.Context, s Session) (Reading, error)
}

// HomedReporter is implemented by backends that can report whether the axis
// already holds a homing reference.
type HomedReporter interface {
	IsHomed(ctx context.Context, s Session) (bool, error)
}

// Identifier is implemented by backends that can read the device identity.
type Identifier interface {
	Identify(ctx context.Context, s Session) (DeviceInfo, error)
}

// Discoverer yields the devices reachable on available transports.
type Discoverer interface {
	Discover(ctx context.Context) ([]DeviceInfo, error)
}
