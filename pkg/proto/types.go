// Package proto defines the shared vocabulary of the agent network:
// identities, states, transitions, requirements, and the events emitted
// when the network changes.
package proto

import (
	"fmt"

	"github.com/google/uuid"
)

// AgentID is an opaque, globally unique agent identifier.
// It carries no ownership semantics; it is purely a graph-node key.
type AgentID string

// NewAgentID generates a fresh random agent identifier.
func NewAgentID() AgentID {
	return AgentID(uuid.New().String())
}

// ParseAgentID validates a string as an agent identifier.
func ParseAgentID(s string) (AgentID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid agent id %q: %w", s, err)
	}
	return AgentID(id.String()), nil
}

func (id AgentID) String() string {
	return string(id)
}

// AgentType identifies which lifecycle contract an agent follows.
// Types are registered once at process start; each carries its own
// state graph and skill set.
type AgentType string

func (t AgentType) String() string {
	return string(t)
}

// State represents one lifecycle state of an agent.
type State string

func (s State) String() string {
	return string(s)
}

// StateTransition is a single from→to step in an agent's lifecycle.
type StateTransition struct {
	From State `json:"from" yaml:"from"`
	To   State `json:"to" yaml:"to"`
}

func (t StateTransition) String() string {
	return fmt.Sprintf("%s → %s", t.From, t.To)
}

// StateRequirement gates a dependent's transition on a dependency of the
// given type being in one of the required states. Optional requirements
// never block but may still be queried.
type StateRequirement struct {
	AgentType      AgentType `json:"agent_type" yaml:"agent_type"`
	RequiredStates []State   `json:"required_states" yaml:"required_states"`
	Skill          string    `json:"skill,omitempty" yaml:"skill,omitempty"`
	Optional       bool      `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Allows reports whether the given state satisfies the requirement.
func (r StateRequirement) Allows(s State) bool {
	for _, want := range r.RequiredStates {
		if want == s {
			return true
		}
	}
	return false
}

// DependencySet is the ordered collection of requirements that must hold
// before an agent may leave a given state via a given transition.
type DependencySet []StateRequirement

// ConditionStatus is the outcome of evaluating one StateRequirement
// against the live state of a dependency.
type ConditionStatus string

const (
	ConditionSatisfied     ConditionStatus = "SATISFIED"
	ConditionUnsatisfied   ConditionStatus = "UNSATISFIED"
	ConditionNotApplicable ConditionStatus = "NOT_APPLICABLE"
)

// ConditionResult pairs a condition status with the requirement that
// produced it and, where not applicable, the reason.
type ConditionResult struct {
	Status      ConditionStatus  `json:"status"`
	Requirement StateRequirement `json:"requirement"`
	Reason      string           `json:"reason,omitempty"`
}
