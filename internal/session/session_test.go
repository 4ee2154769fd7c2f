package session

import (
	"testing"
	"time"
)

func TestAddEvent_Sequencing(t *testing.T) {
	s := New(Capabilities{NetworkEnabled: true})

	first := s.AddEvent(Event{Type: EventDirective, Action: "run", Argument: "uptime"})
	second := s.AddEvent(Event{Type: EventHandlerResult, Action: "run"})

	if first != 1 || second != 2 {
		t.Errorf("sequence wrong: got %d, %d", first, second)
	}
	if len(s.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(s.Events))
	}
	if s.Events[0].Timestamp.IsZero() {
		t.Error("timestamp not stamped")
	}
}

func TestSetMood(t *testing.T) {
	s := New(Capabilities{})
	s.SetMood("curious")
	if s.Mood != "curious" {
		t.Errorf("mood wrong: %q", s.Mood)
	}
	before := s.UpdatedAt
	s.SetMood("")
	if s.Mood != "curious" {
		t.Error("empty mood overwrote state")
	}
	if s.UpdatedAt != before {
		t.Error("no-op mood change touched UpdatedAt")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}

	s := New(Capabilities{NetworkEnabled: true, SafetyEnabled: true})
	ok := true
	s.AddEvent(Event{Type: EventDirective, Action: "write", Argument: "/tmp/a|hi", CorrelationID: "ab12cd34"})
	s.AddEvent(Event{Type: EventHandlerResult, Action: "write", Success: &ok, DurationMs: 3})
	s.SetMood("content")

	if err := store.Save(s); err != nil {
		t.Fatalf("save error: %v", err)
	}

	loaded, err := store.Load(s.ID)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if loaded.ID != s.ID {
		t.Errorf("id wrong: %q", loaded.ID)
	}
	if !loaded.Caps.NetworkEnabled || !loaded.Caps.SafetyEnabled {
		t.Errorf("caps not restored: %+v", loaded.Caps)
	}
	if len(loaded.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded.Events))
	}
	if loaded.Events[1].Success == nil || !*loaded.Events[1].Success {
		t.Error("event outcome not restored")
	}
	if loaded.Mood != "content" {
		t.Errorf("mood not restored: %q", loaded.Mood)
	}

	// Sequence counter resumes after the last persisted event.
	if next := loaded.AddEvent(Event{Type: EventMoodChange, Timestamp: time.Now()}); next != 3 {
		t.Errorf("sequence counter not restored, next=%d", next)
	}
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("create store error: %v", err)
	}
	if _, err := store.Load("nope"); err == nil {
		t.Error("expected error for missing session")
	}
}
