package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hdrlab/linstage/pkg/recorder"
)

// HistoryOptions selects what the history command prints.
type HistoryOptions struct {
	// SessionID prints the samples and transitions of one session.
	// Empty lists the recorded sessions.
	SessionID string
	Limit     int
}

// RunHistory prints snapshot history from a recorder database.
func RunHistory(ctx context.Context, path string, opts HistoryOptions, w io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to open recorder database: %w", err)
	}
	rec, err := recorder.Open(path, recorder.Options{})
	if err != nil {
		return fmt.Errorf("failed to open recorder database: %w", err)
	}
	defer rec.Close()

	if opts.SessionID == "" {
		return printSessions(ctx, rec, w)
	}
	return printSession(ctx, rec, opts, w)
}

func printSessions(ctx context.Context, rec *recorder.Recorder, w io.Writer) error {
	sessions, err := rec.Sessions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sessions: %d\n", len(sessions))
	for _, s := range sessions {
		fmt.Fprintf(w, "  [%s] %d samples, %s to %s, position %.4f..%.4f mm\n",
			shortenSessionID(s.ID), s.Samples,
			s.First.UTC().Format(time.RFC3339), s.Last.UTC().Format(time.RFC3339),
			s.MinPos, s.MaxPos)
	}
	return nil
}

func printSession(ctx context.Context, rec *recorder.Recorder, opts HistoryOptions, w io.Writer) error {
	changes, err := rec.StateChanges(ctx, opts.SessionID)
	if err != nil {
		return err
	}
	for _, c := range changes {
		fmt.Fprintf(w, "%s STATE %s -> %s", c.At.UTC().Format(timeLayout), orDash(c.OldState), c.NewState)
		if c.Reason != "" {
			fmt.Fprintf(w, " (%s)", c.Reason)
		}
		fmt.Fprintln(w)
	}

	samples, err := rec.Samples(ctx, recorder.Query{SessionID: opts.SessionID, Limit: opts.Limit})
	if err != nil {
		return err
	}
	for _, s := range samples {
		flags := ""
		if s.IsMoving {
			flags += " moving"
		}
		if s.IsHomed {
			flags += " homed"
		}
		fmt.Fprintf(w, "%s #%d %.4f mm %.4f mm/s%s\n",
			s.Timestamp.UTC().Format(timeLayout), s.Seq, s.Position, s.Velocity, flags)
	}
	fmt.Fprintf(w, "%d transitions, %d samples\n", len(changes), len(samples))
	return nil
}
