// Package agent defines agent handles and the per-type state graphs
// that govern their lifecycles.
package agent

import (
	"agentnet/pkg/proto"
)

// Handle represents one node in the agent network: its identity, type,
// current lifecycle state, and both views of its dependency edges.
//
// The dependency and dependent sets are two views of the same logical
// edge set and are kept symmetric by the dependency graph, which owns
// every handle. Callers outside the graph only ever see copies.
type Handle struct {
	ID           proto.AgentID
	Type         proto.AgentType
	State        proto.State
	Dependencies map[proto.AgentID]struct{}
	Dependents   map[proto.AgentID]struct{}
}

// NewHandle creates a handle in the given initial state with empty edge sets.
func NewHandle(agentType proto.AgentType, initial proto.State) *Handle {
	return &Handle{
		ID:           proto.NewAgentID(),
		Type:         agentType,
		State:        initial,
		Dependencies: make(map[proto.AgentID]struct{}),
		Dependents:   make(map[proto.AgentID]struct{}),
	}
}

// AddDependency records other as a dependency of this agent.
// Idempotent: adding an existing edge is a no-op.
func (h *Handle) AddDependency(other proto.AgentID) {
	h.Dependencies[other] = struct{}{}
}

// AddDependent records other as a dependent of this agent.
// Idempotent: adding an existing edge is a no-op.
func (h *Handle) AddDependent(other proto.AgentID) {
	h.Dependents[other] = struct{}{}
}

// RemoveDependency drops other from the dependency set.
func (h *Handle) RemoveDependency(other proto.AgentID) {
	delete(h.Dependencies, other)
}

// RemoveDependent drops other from the dependent set.
func (h *Handle) RemoveDependent(other proto.AgentID) {
	delete(h.Dependents, other)
}

// CanObserve reports whether this agent may observe the state of other.
// Visibility is direct-edge only: a transitive dependency is not
// observable unless an explicit edge exists.
func (h *Handle) CanObserve(other proto.AgentID) bool {
	_, ok := h.Dependencies[other]
	return ok
}

// Clone returns a deep copy of the handle for lock-free consumption.
func (h *Handle) Clone() *Handle {
	c := &Handle{
		ID:           h.ID,
		Type:         h.Type,
		State:        h.State,
		Dependencies: make(map[proto.AgentID]struct{}, len(h.Dependencies)),
		Dependents:   make(map[proto.AgentID]struct{}, len(h.Dependents)),
	}
	for id := range h.Dependencies {
		c.Dependencies[id] = struct{}{}
	}
	for id := range h.Dependents {
		c.Dependents[id] = struct{}{}
	}
	return c
}
