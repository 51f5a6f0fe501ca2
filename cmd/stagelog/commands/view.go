// Package commands implements the stagelog CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hdrlab/linstage/pkg/log"
)

// timeLayout formats event timestamps.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Source    *log.Source
	Category  *log.Category
	SessionID string
}

func (f ViewFilter) filter() log.Filter {
	return log.Filter{Source: f.Source, Category: f.Category, SessionID: f.SessionID}
}

// RunView writes the events of path in human-readable form.
func RunView(path string, filter ViewFilter, w io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.filter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session] SOURCE CATEGORY
	ts := event.Timestamp.UTC().Format(timeLayout)
	fmt.Fprintf(w, "%s [%s] %-10s %s\n", ts, shortenSessionID(event.SessionID), event.Source, event.Category)

	switch {
	case event.Command != nil:
		formatCommandDetails(w, event.Command)
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(w, "  %s -> %s", orDash(sc.OldState), sc.NewState)
		if sc.Reason != "" {
			fmt.Fprintf(w, " (%s)", sc.Reason)
		}
		fmt.Fprintln(w)
	case event.Boundary != nil:
		b := event.Boundary
		fmt.Fprintf(w, "  Position: %.4f mm reached limit %.4f moving %s\n", b.Position, b.Limit, direction(b.Direction))
		if b.Seq != 0 {
			fmt.Fprintf(w, "  Sample: %d\n", b.Seq)
		}
	case event.Clamp != nil:
		c := event.Clamp
		fmt.Fprintf(w, "  %s clamped: %.4f -> %.4f\n", c.Field, c.Requested, c.Applied)
	case event.Sampler != nil:
		formatSamplerDetails(w, event.Sampler)
	case event.Error != nil:
		fmt.Fprintf(w, "  Error: %s\n", event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", event.Error.Context)
		}
	}
	if event.Port != "" {
		fmt.Fprintf(w, "  Port: %s\n", event.Port)
	}

	fmt.Fprintln(w) // Blank line between events
}

func formatCommandDetails(w io.Writer, cmd *log.CommandEvent) {
	status := "ok"
	if !cmd.Success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "  %s %s %s", cmd.Op, cmd.Origin, status)
	if cmd.Duration != nil {
		fmt.Fprintf(w, " in %s", formatDuration(*cmd.Duration))
	}
	fmt.Fprintln(w)
	if cmd.Requested != nil {
		fmt.Fprintf(w, "  Requested: %.4f", *cmd.Requested)
		if cmd.Applied != nil && *cmd.Applied != *cmd.Requested {
			fmt.Fprintf(w, "  Applied: %.4f", *cmd.Applied)
		}
		fmt.Fprintln(w)
	}
	if cmd.Err != "" {
		fmt.Fprintf(w, "  Error: %s\n", cmd.Err)
	}
}

func formatSamplerDetails(w io.Writer, s *log.SamplerEvent) {
	parts := []string{s.Kind.String()}
	if s.RateHz != 0 {
		parts = append(parts, fmt.Sprintf("rate=%.1fHz", s.RateHz))
	}
	if s.Failures != 0 {
		parts = append(parts, fmt.Sprintf("failures=%d", s.Failures))
	}
	if s.Samples != 0 {
		parts = append(parts, fmt.Sprintf("samples=%d", s.Samples))
	}
	fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if id == "" {
		return "-"
	}
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func direction(d int8) string {
	switch {
	case d > 0:
		return "positive"
	case d < 0:
		return "negative"
	}
	return "none"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return d.Round(time.Millisecond).String()
	}
}

// ParseSourceFlag parses a source name for CLI flags.
func ParseSourceFlag(s string) (log.Source, error) {
	return parseSource(s)
}

func parseSource(s string) (log.Source, error) {
	switch strings.ToLower(s) {
	case "controller":
		return log.SourceController, nil
	case "sampler":
		return log.SourceSampler, nil
	default:
		return 0, fmt.Errorf("invalid source: %s (use: controller, sampler)", s)
	}
}

// ParseCategoryFlag parses a category name for CLI flags.
func ParseCategoryFlag(s string) (log.Category, error) {
	return parseCategory(s)
}

func parseCategory(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("invalid category: %s (use: command, state, boundary, safety, sampler, error)", s)
	}
	return c, nil
}
