// Package controller implements the stage controller.
//
// A Controller owns one backend session at a time and drives the control
// state machine:
//
//	Disconnected --Connect--> Connecting --> Connected
//	                                     \-> Disconnected (connection error)
//	                                     \-> Error        (timeout)
//	Connected/Homed/Error --Home--> Homing --> Homed | Error
//	Homing --Stop--> Connected (aborted)
//	Connected/Homed --MoveTo/SetVelocity--> Moving
//	Moving --settled/Stop/boundary--> Homed (if homed) | Connected
//	any --Disconnect--> Disconnected
//	any --backend fault--> Error
//
// Commands are serialized: at most one backend command is outstanding at a
// time. The background sampler never changes state itself. When it detects a
// boundary, settled motion or a fault it queues a request, and the
// controller's supervisor goroutine executes it on the same serialized
// command path. Requests carry the motion generation they were raised for,
// so a command that supersedes the motion is never halted by a stale request.
//
// Commands report success as a bool; the failure is available from
// LastError. Clamped commands still succeed and are reported as SAFETY
// events.
package controller
