package agent

import (
	"fmt"

	"agentnet/pkg/proto"
)

// TransitionTable defines allowed state transitions for an agent type.
type TransitionTable map[proto.State][]proto.State

// StateGraph is the finite automaton for one agent type: initial state,
// terminal states, transition table, and the dependency requirements
// gating each transition. Definitions are immutable after registration.
type StateGraph struct {
	Type        proto.AgentType
	Initial     proto.State
	Terminals   map[proto.State]struct{}
	Transitions TransitionTable

	// Requirements holds the per-transition dependency sets, keyed by
	// the transition they gate.
	Requirements map[proto.StateTransition]proto.DependencySet

	// AutoAdvance marks types whose blocked transitions are applied
	// automatically during a propagation wave once satisfied.
	AutoAdvance bool
}

// NewStateGraph creates an empty state graph for the given type.
func NewStateGraph(agentType proto.AgentType, initial proto.State) *StateGraph {
	return &StateGraph{
		Type:         agentType,
		Initial:      initial,
		Terminals:    make(map[proto.State]struct{}),
		Transitions:  make(TransitionTable),
		Requirements: make(map[proto.StateTransition]proto.DependencySet),
	}
}

// AddTransition records a legal from→to step.
func (g *StateGraph) AddTransition(from, to proto.State) *StateGraph {
	g.Transitions[from] = append(g.Transitions[from], to)
	return g
}

// AddTerminal marks a state as terminal.
func (g *StateGraph) AddTerminal(s proto.State) *StateGraph {
	g.Terminals[s] = struct{}{}
	return g
}

// Require attaches a dependency requirement to one transition.
func (g *StateGraph) Require(from, to proto.State, req proto.StateRequirement) *StateGraph {
	key := proto.StateTransition{From: from, To: to}
	g.Requirements[key] = append(g.Requirements[key], req)
	return g
}

// CanTransition reports whether from→to is in the transition table.
func (g *StateGraph) CanTransition(from, to proto.State) bool {
	for _, next := range g.Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialState returns the state newly registered agents start in.
func (g *StateGraph) InitialState() proto.State {
	return g.Initial
}

// IsTerminal reports whether s is a terminal state for this type.
func (g *StateGraph) IsTerminal(s proto.State) bool {
	_, ok := g.Terminals[s]
	return ok
}

// RequirementsFor returns the dependency set gating from→to.
// The returned slice is shared and must not be mutated.
func (g *StateGraph) RequirementsFor(from, to proto.State) proto.DependencySet {
	return g.Requirements[proto.StateTransition{From: from, To: to}]
}

// States returns every state mentioned in the graph definition.
func (g *StateGraph) States() map[proto.State]struct{} {
	states := map[proto.State]struct{}{g.Initial: {}}
	for from, tos := range g.Transitions {
		states[from] = struct{}{}
		for _, to := range tos {
			states[to] = struct{}{}
		}
	}
	for s := range g.Terminals {
		states[s] = struct{}{}
	}
	return states
}

// Validate checks the state-graph invariants: terminal states have no
// outgoing transitions, and every non-terminal state (the initial state
// included) has at least one.
func (g *StateGraph) Validate() error {
	if g.Initial == "" {
		return fmt.Errorf("%w: type %s has no initial state", ErrInvalidStateGraph, g.Type)
	}

	for s := range g.Terminals {
		if len(g.Transitions[s]) > 0 {
			return fmt.Errorf("%w: type %s terminal state %s has outgoing transitions",
				ErrInvalidStateGraph, g.Type, s)
		}
	}

	for s := range g.States() {
		if g.IsTerminal(s) {
			continue
		}
		if len(g.Transitions[s]) == 0 {
			return fmt.Errorf("%w: type %s state %s is a dead end",
				ErrInvalidStateGraph, g.Type, s)
		}
	}

	return nil
}
