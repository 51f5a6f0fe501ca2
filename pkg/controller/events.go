package controller

import (
	"time"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/stage"
)

// emit stamps ev with the session context and logs it.
func (c *Controller) emit(ev log.Event) {
	c.stateMu.RLock()
	ev.SessionID = c.sessionID
	ev.Port = c.port
	c.stateMu.RUnlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	ev.Source = log.SourceController
	c.events.Log(ev)
}

// command describes one backend command for reporting.
type command struct {
	op        log.Op
	origin    log.Origin
	requested *float64
	applied   *float64
	started   time.Time
}

func newCommand(op log.Op, origin log.Origin) *command {
	return &command{op: op, origin: origin, started: time.Now()}
}

func (cmd *command) values(requested, applied float64) *command {
	cmd.requested = log.Float(requested)
	cmd.applied = log.Float(applied)
	return cmd
}

// done reports the command outcome.
func (c *Controller) done(cmd *command, err error) {
	d := time.Since(cmd.started)
	ev := &log.CommandEvent{
		Op:        cmd.op,
		Origin:    cmd.origin,
		Requested: cmd.requested,
		Applied:   cmd.applied,
		Success:   err == nil,
		Duration:  &d,
	}
	if err != nil {
		ev.Err = err.Error()
		c.logger.Warn("command failed", "op", cmd.op, "origin", cmd.origin, "error", err, "duration", d)
	} else {
		c.logger.Info("command", "op", cmd.op, "origin", cmd.origin, "duration", d)
	}
	c.emit(log.Event{Category: log.CategoryCommand, Command: ev})
}

// clamped reports an informational safety clamp.
func (c *Controller) clamped(v stage.SafetyViolation) {
	c.logger.Warn("command clamped", "field", v.Field, "requested", v.Requested, "applied", v.Applied)
	c.emit(log.Event{
		Category: log.CategorySafety,
		Clamp: &log.ClampEvent{
			Field:     v.Field,
			Requested: v.Requested,
			Applied:   v.Applied,
		},
	})
}
