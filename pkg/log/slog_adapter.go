package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes stage events to an slog.Logger.
// Boundary stops, clamps and errors are logged at Warn or Error so they stand
// out in console output; everything else is Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("source", event.Source.String()),
		slog.String("category", event.Category.String()),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.Port != "" {
		attrs = append(attrs, slog.String("port", event.Port))
	}

	level := slog.LevelDebug

	switch {
	case event.Command != nil:
		attrs = append(attrs,
			slog.String("op", event.Command.Op.String()),
			slog.String("origin", event.Command.Origin.String()),
			slog.Bool("success", event.Command.Success),
		)
		if event.Command.Requested != nil {
			attrs = append(attrs, slog.Float64("requested", *event.Command.Requested))
		}
		if event.Command.Applied != nil {
			attrs = append(attrs, slog.Float64("applied", *event.Command.Applied))
		}
		if event.Command.Duration != nil {
			attrs = append(attrs, slog.Duration("duration", *event.Command.Duration))
		}
		if event.Command.Err != "" {
			attrs = append(attrs, slog.String("error", event.Command.Err))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Boundary != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.Float64("position", event.Boundary.Position),
			slog.Float64("limit", event.Boundary.Limit),
			slog.Int("direction", int(event.Boundary.Direction)),
			slog.Uint64("seq", event.Boundary.Seq),
		)
	case event.Clamp != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("field", event.Clamp.Field),
			slog.Float64("requested", event.Clamp.Requested),
			slog.Float64("applied", event.Clamp.Applied),
		)
	case event.Sampler != nil:
		attrs = append(attrs, slog.String("kind", event.Sampler.Kind.String()))
		if event.Sampler.RateHz != 0 {
			attrs = append(attrs, slog.Float64("rate_hz", event.Sampler.RateHz))
		}
		if event.Sampler.Failures != 0 {
			attrs = append(attrs, slog.Int("failures", event.Sampler.Failures))
		}
		if event.Sampler.Samples != 0 {
			attrs = append(attrs, slog.Uint64("samples", event.Sampler.Samples))
		}
		if event.Sampler.Kind == SamplerRateDegraded {
			level = slog.LevelWarn
		}
	case event.Error != nil:
		level = slog.LevelError
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), level, "stage event", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
