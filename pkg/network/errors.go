// Package network contains the validator and coordinator for the agent
// network: the only components allowed to judge and apply mutations of
// the dependency graph and agent states.
package network

import (
	"fmt"

	"agentnet/pkg/proto"
)

// ValidationKind classifies why a requested mutation was rejected.
type ValidationKind string

const (
	// KindInvalidTransition: the requested target state is not reachable
	// from the current state for the agent's type. Surfaced to the
	// caller, never retried automatically.
	KindInvalidTransition ValidationKind = "INVALID_TRANSITION"

	// KindUnmetDependency: a non-optional precondition is unsatisfied.
	// The caller may re-request once the dependency advances, or rely
	// on auto-propagation.
	KindUnmetDependency ValidationKind = "UNMET_DEPENDENCY"

	// KindDanglingDependency: a required dependency agent no longer
	// exists in the graph. Fatal to the requested transition.
	KindDanglingDependency ValidationKind = "DANGLING_DEPENDENCY"

	// KindCycleDetected: an edge addition would violate the DAG
	// invariant. The graph is left unchanged.
	KindCycleDetected ValidationKind = "CYCLE_DETECTED"

	// KindUnsupportedCapability: a dependency declares a skill the
	// depended-on type does not register. A configuration error,
	// surfaced by the whole-graph sweep.
	KindUnsupportedCapability ValidationKind = "UNSUPPORTED_CAPABILITY"

	// KindUnknownAgent: the subject of the request is not registered.
	KindUnknownAgent ValidationKind = "UNKNOWN_AGENT"
)

// ValidationError is the structured rejection returned instead of
// applying a mutation. A rejected request leaves the graph unchanged.
type ValidationError struct {
	Kind        ValidationKind          `json:"kind"`
	AgentID     proto.AgentID           `json:"agent_id,omitempty"`
	Requirement *proto.StateRequirement `json:"requirement,omitempty"`
	Detail      string                  `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func newValidationError(kind ValidationKind, agentID proto.AgentID, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:    kind,
		AgentID: agentID,
		Detail:  fmt.Sprintf(format, args...),
	}
}
