package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/hdrlab/linstage/pkg/log"
)

// Record is the export form of an event, with enums as names.
type Record struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	SessionID string         `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Source    string         `json:"source" yaml:"source"`
	Category  string         `json:"category" yaml:"category"`
	Port      string         `json:"port,omitempty" yaml:"port,omitempty"`
	Type      string         `json:"type" yaml:"type"`
	Detail    map[string]any `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// NewRecord converts an event for export.
func NewRecord(event log.Event) Record {
	r := Record{
		Timestamp: event.Timestamp.UTC().Format(timeLayout),
		SessionID: event.SessionID,
		Source:    event.Source.String(),
		Category:  event.Category.String(),
		Port:      event.Port,
		Type:      "unknown",
		Detail:    map[string]any{},
	}

	switch {
	case event.Command != nil:
		c := event.Command
		r.Type = c.Op.String()
		r.Detail["origin"] = c.Origin.String()
		r.Detail["success"] = c.Success
		if c.Requested != nil {
			r.Detail["requested"] = *c.Requested
		}
		if c.Applied != nil {
			r.Detail["applied"] = *c.Applied
		}
		if c.Duration != nil {
			r.Detail["duration_ns"] = c.Duration.Nanoseconds()
		}
		if c.Err != "" {
			r.Detail["error"] = c.Err
		}
	case event.StateChange != nil:
		r.Type = "state"
		r.Detail["old_state"] = event.StateChange.OldState
		r.Detail["new_state"] = event.StateChange.NewState
		if event.StateChange.Reason != "" {
			r.Detail["reason"] = event.StateChange.Reason
		}
	case event.Boundary != nil:
		r.Type = "boundary"
		r.Detail["position"] = event.Boundary.Position
		r.Detail["limit"] = event.Boundary.Limit
		r.Detail["direction"] = int(event.Boundary.Direction)
		r.Detail["seq"] = event.Boundary.Seq
	case event.Clamp != nil:
		r.Type = "clamp"
		r.Detail["field"] = event.Clamp.Field
		r.Detail["requested"] = event.Clamp.Requested
		r.Detail["applied"] = event.Clamp.Applied
	case event.Sampler != nil:
		r.Type = event.Sampler.Kind.String()
		if event.Sampler.RateHz != 0 {
			r.Detail["rate_hz"] = event.Sampler.RateHz
		}
		if event.Sampler.Failures != 0 {
			r.Detail["failures"] = event.Sampler.Failures
		}
		if event.Sampler.Samples != 0 {
			r.Detail["samples"] = event.Sampler.Samples
		}
	case event.Error != nil:
		r.Type = "error"
		r.Detail["message"] = event.Error.Message
		if event.Error.Context != "" {
			r.Detail["context"] = event.Error.Context
		}
	}
	if len(r.Detail) == 0 {
		r.Detail = nil
	}
	return r
}

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string, filter ViewFilter) error {
	reader, err := log.NewFilteredReader(path, filter.filter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	// Determine output writer
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	return export(reader, format, w)
}

func export(reader *log.Reader, format string, w io.Writer) error {
	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "yaml":
		return exportYAML(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, yaml, csv)", format)
	}
}

// each calls fn for every event until EOF.
func each(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return each(reader, func(event log.Event) error {
		if err := encoder.Encode(NewRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

// exportYAML writes one YAML document per event.
func exportYAML(reader *log.Reader, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	err := each(reader, func(event log.Event) error {
		if err := encoder.Encode(NewRecord(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
	if cerr := encoder.Close(); err == nil {
		err = cerr
	}
	return err
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "source", "category", "type", "port", "value", "success"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return each(reader, func(event log.Event) error {
		r := NewRecord(event)
		value, success := "", ""
		switch {
		case event.Command != nil:
			if event.Command.Applied != nil {
				value = strconv.FormatFloat(*event.Command.Applied, 'f', -1, 64)
			}
			success = strconv.FormatBool(event.Command.Success)
		case event.StateChange != nil:
			value = event.StateChange.NewState
		case event.Boundary != nil:
			value = strconv.FormatFloat(event.Boundary.Position, 'f', -1, 64)
		case event.Clamp != nil:
			value = strconv.FormatFloat(event.Clamp.Applied, 'f', -1, 64)
		case event.Error != nil:
			value = event.Error.Message
		}
		row := []string{r.Timestamp, r.SessionID, r.Source, r.Category, r.Type, r.Port, value, success}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
		return nil
	})
}
