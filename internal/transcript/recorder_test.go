package transcript

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecorderWritesEvents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.db")
	rec, err := NewRecorder(path, 16, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer func() { _ = rec.Close() }()

	rec.Record(Event{
		ProjectID: "proj-1",
		TurnID:    "turn-1",
		Kind:      KindMessage,
		Role:      "user",
		Content:   "build a page",
	})
	rec.Record(Event{
		ProjectID: "proj-1",
		TurnID:    "turn-1",
		Kind:      KindStep,
		StepType:  "tool_call",
		ToolName:  "write_file",
	})

	deadline := time.Now().Add(3 * time.Second)
	var events []Event
	for time.Now().Before(deadline) {
		events, err = rec.Events(context.Background(), "proj-1", 10)
		if err != nil {
			t.Fatalf("Events failed: %v", err)
		}
		if len(events) == 2 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 recorded events, got %d", len(events))
	}
	if events[0].Kind != KindMessage || events[0].Content != "build a page" {
		t.Errorf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != KindStep || events[1].ToolName != "write_file" {
		t.Errorf("unexpected second event %+v", events[1])
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be populated")
	}
}

func TestRecorderCloseFlushesQueue(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.db")
	rec, err := NewRecorder(path, 64, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		rec.Record(Event{ProjectID: "proj-1", Kind: KindMessage, Role: "assistant", Content: "chunk"})
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopen and verify everything queued before Close made it to disk.
	reopened, err := NewRecorder(path, 8, testLogger())
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	events, err := reopened.Events(context.Background(), "proj-1", 100)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("expected 10 flushed events, got %d", len(events))
	}
}

func TestRecorderFullQueueDoesNotBlock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcript.db")
	rec, err := NewRecorder(path, 1, testLogger())
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	defer func() { _ = rec.Close() }()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			rec.Record(Event{ProjectID: "proj-1", Kind: KindStep, StepType: "thinking"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}
