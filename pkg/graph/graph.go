// Package graph owns the agent network's dependency graph: an arena of
// agent handles keyed by ID, with a directed, always-acyclic edge set.
//
// Edges are stored as ID sets on both endpoints (dependencies on the
// dependent, dependents on the dependency), so no handle ever references
// another handle directly.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"agentnet/pkg/agent"
	"agentnet/pkg/proto"
)

var (
	// ErrAgentNotFound indicates the referenced agent is not in the arena.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrSelfEdge indicates an agent was declared as its own dependency.
	ErrSelfEdge = errors.New("self edge rejected")

	// ErrCycleDetected indicates an edge addition would violate the DAG
	// invariant, or a defensive sweep found a cycle.
	ErrCycleDetected = errors.New("cycle detected")
)

type edgeKey struct {
	from proto.AgentID
	to   proto.AgentID
}

// Graph is the lock-guarded arena of agent handles. It is the single
// owner of every handle; reads hand out copies.
type Graph struct {
	mu       sync.RWMutex
	handles  map[proto.AgentID]*agent.Handle
	edgeReqs map[edgeKey]proto.StateRequirement
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		handles:  make(map[proto.AgentID]*agent.Handle),
		edgeReqs: make(map[edgeKey]proto.StateRequirement),
	}
}

// Register creates a node for a new agent in the given initial state.
func (g *Graph) Register(agentType proto.AgentType, initial proto.State) *agent.Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	h := agent.NewHandle(agentType, initial)
	g.handles[h.ID] = h
	return h.Clone()
}

// Restore inserts a previously persisted handle under its original ID.
func (g *Graph) Restore(h *agent.Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handles[h.ID] = h.Clone()
}

// Handle returns a copy of the handle for id.
func (g *Graph) Handle(id proto.AgentID) (*agent.Handle, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return h.Clone(), nil
}

// StateOf returns the current state of id.
func (g *Graph) StateOf(id proto.AgentID) (proto.State, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return h.State, nil
}

// SetState updates the state of id. Legality is the caller's problem;
// the coordinator validates before it mutates.
func (g *Graph) SetState(id proto.AgentID, s proto.State) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.handles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	h.State = s
	return nil
}

// AddEdge records "from depends on to". The edge is rejected if either
// endpoint is missing, the edge is a self-loop, or to already reaches
// from through existing dependency edges (which would close a cycle).
// A rejected edge leaves the graph unchanged.
func (g *Graph) AddEdge(from, to proto.AgentID, req *proto.StateRequirement) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}
	src, ok := g.handles[from]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, from)
	}
	dst, ok := g.handles[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, to)
	}

	// Reachability check before commit: can to reach from?
	if g.hasPath(to, from, make(map[proto.AgentID]bool)) {
		return fmt.Errorf("%w: %s -> %s", ErrCycleDetected, from, to)
	}

	src.AddDependency(to)
	dst.AddDependent(from)
	if req != nil {
		g.edgeReqs[edgeKey{from: from, to: to}] = *req
	}
	return nil
}

// hasPath walks dependency edges from "from" looking for "to".
// Caller holds the lock.
func (g *Graph) hasPath(from, to proto.AgentID, visited map[proto.AgentID]bool) bool {
	if from == to {
		return true
	}
	if visited[from] {
		return false
	}
	visited[from] = true

	h, ok := g.handles[from]
	if !ok {
		return false
	}
	for dep := range h.Dependencies {
		if g.hasPath(dep, to, visited) {
			return true
		}
	}
	return false
}

// RemoveEdge unconditionally removes both adjacency entries and any
// requirement recorded against the edge.
func (g *Graph) RemoveEdge(from, to proto.AgentID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if src, ok := g.handles[from]; ok {
		src.RemoveDependency(to)
	}
	if dst, ok := g.handles[to]; ok {
		dst.RemoveDependent(from)
	}
	delete(g.edgeReqs, edgeKey{from: from, to: to})
}

// EdgeRequirement returns the requirement recorded for from→to, if any.
func (g *Graph) EdgeRequirement(from, to proto.AgentID) (proto.StateRequirement, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	req, ok := g.edgeReqs[edgeKey{from: from, to: to}]
	return req, ok
}

// DependenciesOf returns the IDs id depends on.
func (g *Graph) DependenciesOf(id proto.AgentID) []proto.AgentID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[id]
	if !ok {
		return nil
	}
	deps := make([]proto.AgentID, 0, len(h.Dependencies))
	for dep := range h.Dependencies {
		deps = append(deps, dep)
	}
	return deps
}

// DependentsOf returns the IDs that depend on id.
func (g *Graph) DependentsOf(id proto.AgentID) []proto.AgentID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[id]
	if !ok {
		return nil
	}
	deps := make([]proto.AgentID, 0, len(h.Dependents))
	for dep := range h.Dependents {
		deps = append(deps, dep)
	}
	return deps
}

// CanObserve reports whether observer holds a direct dependency edge to
// subject. Transitive reachability does not grant visibility.
func (g *Graph) CanObserve(observer, subject proto.AgentID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	h, ok := g.handles[observer]
	if !ok {
		return false
	}
	return h.CanObserve(subject)
}

// Remove deletes a node and every edge touching it. Used by the
// coordinator's prune policy; the graph itself imposes none.
func (g *Graph) Remove(id proto.AgentID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, ok := g.handles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	for dep := range h.Dependencies {
		if other, ok := g.handles[dep]; ok {
			other.RemoveDependent(id)
		}
		delete(g.edgeReqs, edgeKey{from: id, to: dep})
	}
	for dep := range h.Dependents {
		if other, ok := g.handles[dep]; ok {
			other.RemoveDependency(id)
		}
		delete(g.edgeReqs, edgeKey{from: dep, to: id})
	}
	delete(g.handles, id)
	return nil
}

// Len returns the number of registered agents.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.handles)
}

// All returns copies of every handle in the arena.
func (g *Graph) All() []*agent.Handle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handles := make([]*agent.Handle, 0, len(g.handles))
	for _, h := range g.handles {
		handles = append(handles, h.Clone())
	}
	return handles
}
