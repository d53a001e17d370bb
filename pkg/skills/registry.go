// Package skills holds the registry of capabilities each agent type is
// declared to provide. The validator uses it to confirm that a declared
// dependency on "type T for skill K" can actually be satisfied.
package skills

import (
	"sync"

	"agentnet/pkg/proto"
)

// Definition describes one named capability an agent type exposes,
// optionally gated on dependency state preconditions.
type Definition struct {
	Name          string                   `json:"name" yaml:"name"`
	OwningType    proto.AgentType          `json:"owning_type" yaml:"owning_type"`
	Preconditions []proto.StateRequirement `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
}

// Registry maps agent types to the skills they expose. Registration is
// expected at process start; for a given name, the last registration wins.
type Registry struct {
	mu     sync.RWMutex
	byType map[proto.AgentType]map[string]Definition
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[proto.AgentType]map[string]Definition),
	}
}

// Register stores a skill definition under its owning type.
func (r *Registry) Register(agentType proto.AgentType, def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	def.OwningType = agentType
	if r.byType[agentType] == nil {
		r.byType[agentType] = make(map[string]Definition)
	}
	r.byType[agentType][def.Name] = def
}

// SkillsOf returns copies of the skill definitions for a type.
func (r *Registry) SkillsOf(agentType proto.AgentType) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.byType[agentType]))
	for _, def := range r.byType[agentType] {
		defs = append(defs, def)
	}
	return defs
}

// Provides reports whether the type exposes the named skill.
func (r *Registry) Provides(agentType proto.AgentType, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.byType[agentType][name]
	return ok
}
