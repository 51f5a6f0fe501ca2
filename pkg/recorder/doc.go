// Package recorder stores published stage snapshots in SQLite.
//
// A Recorder is attached to a controller through controller.Options.OnSample
// and, to tag rows with the backend session, as a log.Logger on the event
// sink. Recording never blocks the sampling loop: snapshots are queued and
// written in batches by a background writer; a full queue drops samples and
// counts them.
package recorder
