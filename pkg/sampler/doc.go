// Package sampler implements the background position sampler.
//
// A Sampler polls the backend for position, velocity and motion status at a
// fixed rate and publishes each reading as an immutable stage.Snapshot through
// an atomic pointer. Readers never block the loop and never observe a partially
// written snapshot.
//
// On every sample the sampler asks its MotionSource what the controller is
// doing. During velocity motion it evaluates the safety boundary and, when the
// commanded direction has reached its limit, calls OnBoundary once for that
// motion generation. During position motion it reports completion through
// OnSettled. The sampler itself never changes control state; it only raises
// requests that the controller executes on its command path.
//
// Scheduling uses an absolute deadline grid anchored at the priming read, so
// the loop never samples early. When samples repeatedly miss their deadline the
// interval is doubled down to a configurable floor instead of skipping samples.
//
// Consecutive read failures leave the previous snapshot in place. Once the
// failure budget is exhausted OnFault is called once and the loop exits.
package sampler
