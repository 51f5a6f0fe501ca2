// Package log provides the stage event log.
//
// The event log is the reporting collaborator injected into the controller and
// the sampler. It captures a machine-readable trace of everything that affects
// motion: commands and their outcomes, control state changes, boundary stops,
// safety clamps and sampler health. It is separate from operational logging
// (slog), which stays human-oriented.
//
// # Basic Usage
//
// Applications configure event capture by providing a Logger implementation:
//
//	// For development: log to console via slog
//	opts.Events = log.NewSlogAdapter(slog.Default())
//
//	// For lab runs: write to a binary file
//	opts.Events, _ = log.NewFileLogger("run-042.stlog")
//
//	// Both: use MultiLogger
//	opts.Events = log.NewMultiLogger(console, file)
//
// # Event Categories
//
//   - COMMAND: a connect/home/move/velocity/stop/disconnect and its result
//   - STATE: a control state transition
//   - BOUNDARY: a boundary-triggered stop (distinct from caller stops)
//   - SAFETY: an informational clamp of a requested value
//   - SAMPLER: sampler lifecycle, rate degradation and read failures
//   - ERROR: faults at any layer
//
// # File Format
//
// Log files are a stream of CBOR-encoded events with integer keys, using the
// .stlog extension. The stagelog command views, filters and exports them.
package log
