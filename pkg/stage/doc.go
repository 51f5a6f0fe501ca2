// Package stage defines the data model shared by every linstage component.
//
// A stage is a single motorized linear axis. This package holds the values
// that flow between the supervisory layers:
//
//   - Config: validated, immutable stage configuration (port, position limits,
//     maximum velocity, sampling rate)
//   - Snapshot: an immutable, timestamped capture of position, velocity and
//     motion/homing status, published by the sampler
//   - State: the controller's control state (DISCONNECTED, CONNECTED, ...)
//   - DeviceInfo: identity of a discovered or connected device
//
// It also defines the collaborator contracts the core consumes: Backend (the
// vendor driver), Session, and Discoverer.
//
// # Units
//
// Positions are millimetres, velocities millimetres per second. Translation to
// device units is the backend's concern.
//
// # Errors
//
// Failures are reported with the sentinel errors in this package wrapped with
// context, so callers match them with errors.Is:
//
//	if errors.Is(err, stage.ErrTimeout) { ... }
package stage
