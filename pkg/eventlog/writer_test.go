package eventlog

import (
	"testing"

	"agentnet/pkg/proto"
)

func TestWriteAndReadEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	a := proto.NewAgentID()
	b := proto.NewAgentID()

	first := proto.NewTransitionEvent(a, "running", "completed", proto.TriggerRequest)
	second := proto.NewEdgeEvent(b, proto.EdgeAdded, a)

	if err := w.WriteEvent(first); err != nil {
		t.Fatalf("failed to write event: %v", err)
	}
	if err := w.WriteEvent(second); err != nil {
		t.Fatalf("failed to write event: %v", err)
	}

	events, err := ReadEvents(w.CurrentLogFile())
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Emission order is preserved.
	if events[0].ID != first.ID {
		t.Errorf("expected first event %s, got %s", first.ID, events[0].ID)
	}
	if events[1].EdgeChange == nil || events[1].EdgeChange.OtherID != a {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer w.Close()

	if err := w.WriteEvent(proto.NewTransitionEvent(proto.NewAgentID(), "a", "b", proto.TriggerRequest)); err != nil {
		t.Fatalf("failed to write event: %v", err)
	}

	files, err := ListLogFiles(dir)
	if err != nil {
		t.Fatalf("failed to list log files: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("expected 1 log file, got %d", len(files))
	}
}
