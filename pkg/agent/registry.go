package agent

import (
	"fmt"
	"sync"

	"agentnet/pkg/proto"
)

// Registry maps agent types to their state graphs. Registration happens
// once at process start; lookups are concurrent.
type Registry struct {
	mu     sync.RWMutex
	graphs map[proto.AgentType]*StateGraph
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{
		graphs: make(map[proto.AgentType]*StateGraph),
	}
}

// Register validates and stores a state graph. Redefining a type is a
// configuration-time operation; the last registration wins.
func (r *Registry) Register(g *StateGraph) error {
	if err := g.Validate(); err != nil {
		return fmt.Errorf("failed to register type %s: %w", g.Type, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[g.Type] = g
	return nil
}

// Graph returns the state graph for a type.
func (r *Registry) Graph(agentType proto.AgentType) (*StateGraph, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.graphs[agentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgentType, agentType)
	}
	return g, nil
}

// CanTransition is a table lookup across the registry.
func (r *Registry) CanTransition(agentType proto.AgentType, from, to proto.State) bool {
	g, err := r.Graph(agentType)
	if err != nil {
		return false
	}
	return g.CanTransition(from, to)
}

// InitialState returns the initial state for a type.
func (r *Registry) InitialState(agentType proto.AgentType) (proto.State, error) {
	g, err := r.Graph(agentType)
	if err != nil {
		return "", err
	}
	return g.InitialState(), nil
}

// IsTerminal reports whether state is terminal for the type.
func (r *Registry) IsTerminal(agentType proto.AgentType, s proto.State) bool {
	g, err := r.Graph(agentType)
	if err != nil {
		return false
	}
	return g.IsTerminal(s)
}

// RequirementsFor returns the dependency set gating one transition.
func (r *Registry) RequirementsFor(agentType proto.AgentType, from, to proto.State) proto.DependencySet {
	g, err := r.Graph(agentType)
	if err != nil {
		return nil
	}
	return g.RequirementsFor(from, to)
}

// Types returns the registered agent types.
func (r *Registry) Types() []proto.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]proto.AgentType, 0, len(r.graphs))
	for t := range r.graphs {
		types = append(types, t)
	}
	return types
}
