package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/recorder"
	"github.com/hdrlab/linstage/pkg/stage"
)

func createTestDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")

	rec, err := recorder.Open(path, recorder.Options{})
	if err != nil {
		t.Fatalf("failed to open recorder: %v", err)
	}
	rec.Log(log.Event{
		Timestamp:   baseTime,
		SessionID:   "abcdef12-0000",
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: "CONNECTED", NewState: "MOVING", Reason: "move"},
	})
	for i := 1; i <= 3; i++ {
		rec.Record(stage.Snapshot{
			Position:  float64(i) * 2.5,
			Velocity:  2.5,
			IsMoving:  i < 3,
			IsHomed:   true,
			Timestamp: baseTime.Add(time.Duration(i) * 10 * time.Millisecond),
			Seq:       uint64(i),
			Known:     true,
		})
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("failed to close recorder: %v", err)
	}
	return path
}

func TestRunHistorySessions(t *testing.T) {
	path := createTestDatabase(t)

	var buf bytes.Buffer
	if err := RunHistory(context.Background(), path, HistoryOptions{}, &buf); err != nil {
		t.Fatalf("RunHistory failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Sessions: 1") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "[abcdef12] 3 samples") || !strings.Contains(out, "position 2.5000..7.5000 mm") {
		t.Errorf("unexpected session line:\n%s", out)
	}
}

func TestRunHistorySession(t *testing.T) {
	path := createTestDatabase(t)

	var buf bytes.Buffer
	opts := HistoryOptions{SessionID: "abcdef12-0000", Limit: 2}
	if err := RunHistory(context.Background(), path, opts, &buf); err != nil {
		t.Fatalf("RunHistory failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"STATE CONNECTED -> MOVING (move)",
		"#1 2.5000 mm 2.5000 mm/s moving homed",
		"#2 5.0000 mm",
		"1 transitions, 2 samples",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "#3 ") {
		t.Errorf("limit not applied:\n%s", out)
	}
}

func TestRunHistoryMissingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	if err := RunHistory(context.Background(), path, HistoryOptions{}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing database")
	}
}
