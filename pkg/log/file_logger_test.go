package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestFileLoggerCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer logger.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
}

func TestFileLoggerRoundTripsBoundaryEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	ts := time.Date(2025, 11, 3, 14, 0, 0, 123456789, time.UTC)
	logger.Log(Event{
		Timestamp: ts,
		SessionID: "sess-1",
		Source:    SourceSampler,
		Category:  CategoryBoundary,
		Port:      "COM3",
		Boundary: &BoundaryEvent{
			Position:  100.02,
			Limit:     100,
			Direction: 1,
			Seq:       42,
		},
	})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	got, err := reader.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
	if got.Source != SourceSampler || got.Category != CategoryBoundary {
		t.Errorf("Source/Category = %v/%v, want SAMPLER/BOUNDARY", got.Source, got.Category)
	}
	if got.Boundary == nil || got.Boundary.Seq != 42 || got.Boundary.Limit != 100 {
		t.Errorf("Boundary = %+v, want seq 42 at limit 100", got.Boundary)
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("second Next() error = %v, want io.EOF", err)
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	for i := 0; i < 2; i++ {
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		logger.Log(Event{Timestamp: time.Now(), Category: CategoryCommand})
		logger.Close()
	}

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		if _, err := reader.Next(); err != nil {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("read %d events, want 2", count)
	}
}

func TestFileLoggerConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				logger.Log(Event{Timestamp: time.Now(), Category: CategorySampler,
					Sampler: &SamplerEvent{Kind: SamplerReadFailed, Failures: i}})
			}
		}()
	}
	wg.Wait()
	logger.Close()

	reader, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer reader.Close()

	count := 0
	for {
		_, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed after %d events: %v", count, err)
		}
		count++
	}
	if count != 400 {
		t.Errorf("read %d events, want 400", count)
	}
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	logger.Close()
	logger.Log(Event{Timestamp: time.Now()})

	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size = %d, want 0", info.Size())
	}
}

func TestFileLoggerCountsAndSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "stage"+FileExtension)

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}

	for i := 0; i < 3; i++ {
		logger.Log(Event{Timestamp: time.Now(), Category: CategoryState,
			StateChange: &StateChangeEvent{NewState: "CONNECTED"}})
	}
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync failed: %v", err)
	}
	if logger.Written() != 3 || logger.Dropped() != 0 {
		t.Errorf("written=%d dropped=%d, want 3/0", logger.Written(), logger.Dropped())
	}

	logger.Close()
	if err := logger.Sync(); err == nil {
		t.Error("expected Sync error after Close")
	}
	logger.Log(Event{Timestamp: time.Now()})
	if logger.Written() != 3 {
		t.Errorf("Log after Close was counted")
	}
}
