package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hdrlab/linstage/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsBySource   map[log.Source]int
	EventsByCategory map[log.Category]int
	Sessions         map[string]*SessionStats
	Boundaries       int
	Clamps           int
	FailedCommands   int
	Errors           int
	Truncated        bool
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for a single backend session.
type SessionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Port      string
	Commands  map[log.Op]int
	LastState string
	Samples   uint64
	Degraded  bool
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	if err := each(reader, stats.add); err != nil {
		return err
	}
	stats.Truncated = reader.Truncated()

	printStats(w, stats)
	return nil
}

func newStats() *Stats {
	return &Stats{
		EventsBySource:   make(map[log.Source]int),
		EventsByCategory: make(map[log.Category]int),
		Sessions:         make(map[string]*SessionStats),
	}
}

func (s *Stats) add(event log.Event) error {
	s.TotalEvents++
	s.EventsBySource[event.Source]++
	s.EventsByCategory[event.Category]++

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
			Commands:  make(map[log.Op]int),
		}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if event.Port != "" && sess.Port == "" {
		sess.Port = event.Port
	}

	switch {
	case event.Command != nil:
		sess.Commands[event.Command.Op]++
		if !event.Command.Success {
			s.FailedCommands++
		}
	case event.StateChange != nil:
		sess.LastState = event.StateChange.NewState
	case event.Boundary != nil:
		s.Boundaries++
	case event.Clamp != nil:
		s.Clamps++
	case event.Sampler != nil:
		if event.Sampler.Samples > sess.Samples {
			sess.Samples = event.Sampler.Samples
		}
		if event.Sampler.Kind == log.SamplerRateDegraded {
			sess.Degraded = true
		}
	case event.Error != nil:
		s.Errors++
	}
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Stage Event Log Statistics ===")
	fmt.Fprintln(w)

	// Time range
	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Source:")
	for _, src := range []log.Source{log.SourceController, log.SourceSampler} {
		if count := stats.EventsBySource[src]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", src.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for cat := log.CategoryCommand; cat <= log.CategoryError; cat++ {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenSessionID(s.id), s.stats.Events, duration)
			if s.stats.Port != "" {
				fmt.Fprintf(w, "           Port: %s\n", s.stats.Port)
			}
			if len(s.stats.Commands) > 0 {
				fmt.Fprintf(w, "           Commands: %s\n", formatCommandCounts(s.stats.Commands))
			}
			if s.stats.Samples > 0 {
				fmt.Fprintf(w, "           Samples: %d\n", s.stats.Samples)
			}
			if s.stats.LastState != "" {
				fmt.Fprintf(w, "           Last state: %s\n", s.stats.LastState)
			}
			if s.stats.Degraded {
				fmt.Fprintln(w, "           Sampling rate degraded")
			}
		}
	}

	if stats.Boundaries > 0 || stats.Clamps > 0 || stats.FailedCommands > 0 || stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Boundary stops: %d\n", stats.Boundaries)
		fmt.Fprintf(w, "Clamps:         %d\n", stats.Clamps)
		fmt.Fprintf(w, "Failed:         %d\n", stats.FailedCommands)
		fmt.Fprintf(w, "Errors:         %d\n", stats.Errors)
	}

	if stats.Truncated {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warning: log ends with a partially written event")
	}
}

func formatCommandCounts(counts map[log.Op]int) string {
	ops := make([]log.Op, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	out := ""
	for i, op := range ops {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", op, counts[op])
	}
	return out
}
