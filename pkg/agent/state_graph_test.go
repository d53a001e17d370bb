package agent

import (
	"errors"
	"testing"

	"agentnet/pkg/proto"
)

func testGraph() *StateGraph {
	g := NewStateGraph("coder", "waiting")
	g.AddTransition("waiting", "active").
		AddTransition("active", "completed").
		AddTransition("active", "failed").
		AddTerminal("completed").
		AddTerminal("failed")
	return g
}

func TestStateGraphCanTransition(t *testing.T) {
	g := testGraph()

	if !g.CanTransition("waiting", "active") {
		t.Error("expected waiting → active to be legal")
	}
	if g.CanTransition("waiting", "completed") {
		t.Error("expected waiting → completed to be illegal")
	}
	if g.CanTransition("completed", "waiting") {
		t.Error("terminal state must have no outgoing transitions")
	}
}

func TestStateGraphValidate(t *testing.T) {
	if err := testGraph().Validate(); err != nil {
		t.Fatalf("valid graph rejected: %v", err)
	}

	// Dead end: "stalled" is non-terminal with no outgoing transitions.
	deadEnd := testGraph()
	deadEnd.AddTransition("active", "stalled")
	err := deadEnd.Validate()
	if !errors.Is(err, ErrInvalidStateGraph) {
		t.Errorf("expected ErrInvalidStateGraph for dead end, got %v", err)
	}

	// Terminal state with outgoing transitions.
	badTerminal := testGraph()
	badTerminal.Transitions["completed"] = []proto.State{"waiting"}
	err = badTerminal.Validate()
	if !errors.Is(err, ErrInvalidStateGraph) {
		t.Errorf("expected ErrInvalidStateGraph for terminal with exits, got %v", err)
	}
}

func TestStateGraphRequirements(t *testing.T) {
	g := testGraph()
	req := proto.StateRequirement{
		AgentType:      "builder",
		RequiredStates: []proto.State{"completed"},
	}
	g.Require("waiting", "active", req)

	set := g.RequirementsFor("waiting", "active")
	if len(set) != 1 {
		t.Fatalf("expected 1 requirement, got %d", len(set))
	}
	if set[0].AgentType != "builder" {
		t.Errorf("unexpected requirement type: %s", set[0].AgentType)
	}
	if len(g.RequirementsFor("active", "completed")) != 0 {
		t.Error("expected no requirements on unguarded transition")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(testGraph()); err != nil {
		t.Fatalf("failed to register graph: %v", err)
	}

	initial, err := r.InitialState("coder")
	if err != nil {
		t.Fatalf("initial state lookup failed: %v", err)
	}
	if initial != "waiting" {
		t.Errorf("expected waiting, got %s", initial)
	}

	if !r.CanTransition("coder", "waiting", "active") {
		t.Error("expected legal transition via registry")
	}
	if r.CanTransition("reviewer", "waiting", "active") {
		t.Error("unknown type must not transition")
	}
	if !r.IsTerminal("coder", "completed") {
		t.Error("expected completed to be terminal")
	}

	if _, err := r.Graph("reviewer"); !errors.Is(err, ErrUnknownAgentType) {
		t.Errorf("expected ErrUnknownAgentType, got %v", err)
	}
}

func TestHandleEdgesIdempotent(t *testing.T) {
	h := NewHandle("coder", "waiting")
	other := proto.NewAgentID()

	h.AddDependency(other)
	h.AddDependency(other)
	if len(h.Dependencies) != 1 {
		t.Errorf("expected 1 dependency after duplicate add, got %d", len(h.Dependencies))
	}

	if !h.CanObserve(other) {
		t.Error("expected direct dependency to be observable")
	}
	if h.CanObserve(proto.NewAgentID()) {
		t.Error("expected unrelated agent to be unobservable")
	}

	h.RemoveDependency(other)
	if h.CanObserve(other) {
		t.Error("expected removed dependency to be unobservable")
	}
}
