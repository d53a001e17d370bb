package network

import (
	"errors"

	"agentnet/pkg/agent"
	"agentnet/pkg/graph"
	"agentnet/pkg/logx"
	"agentnet/pkg/proto"
	"agentnet/pkg/skills"
)

// Validator judges transition requests and whole-graph consistency.
// It never mutates anything.
type Validator struct {
	graph  *graph.Graph
	types  *agent.Registry
	skills *skills.Registry
	logger *logx.Logger
}

// NewValidator creates a validator over the given graph and registries.
func NewValidator(g *graph.Graph, types *agent.Registry, sk *skills.Registry) *Validator {
	return &Validator{
		graph:  g,
		types:  types,
		skills: sk,
		logger: logx.NewLogger("validator"),
	}
}

// ValidateTransition checks whether agentID may move to the target
// state right now. Returns nil when the request is valid.
func (v *Validator) ValidateTransition(agentID proto.AgentID, to proto.State) *ValidationError {
	h, err := v.graph.Handle(agentID)
	if err != nil {
		return newValidationError(KindUnknownAgent, agentID, "agent %s is not registered", agentID)
	}

	sg, err := v.types.Graph(h.Type)
	if err != nil {
		return newValidationError(KindUnknownAgent, agentID, "agent type %s is not registered", h.Type)
	}

	if !sg.CanTransition(h.State, to) {
		return newValidationError(KindInvalidTransition, agentID,
			"type %s has no transition %s → %s", h.Type, h.State, to)
	}

	var dangling *ValidationError
	for _, result := range v.EvaluateConditions(h, sg.RequirementsFor(h.State, to)) {
		switch result.Status {
		case proto.ConditionUnsatisfied:
			if result.Requirement.Optional {
				continue
			}
			req := result.Requirement
			return &ValidationError{
				Kind:        KindUnmetDependency,
				AgentID:     agentID,
				Requirement: &req,
				Detail:      result.Reason,
			}
		case proto.ConditionNotApplicable:
			// Does not block; kept queryable through EvaluateConditions.
		case proto.ConditionSatisfied:
		}
	}

	// A dependency edge pointing at a handle that no longer exists is
	// fatal regardless of requirement satisfaction.
	for dep := range h.Dependencies {
		if _, err := v.graph.Handle(dep); err != nil {
			dangling = newValidationError(KindDanglingDependency, agentID,
				"dependency %s no longer exists", dep)
			break
		}
	}
	if dangling != nil {
		return dangling
	}

	return nil
}

// EvaluateConditions evaluates a dependency set, plus any requirements
// recorded on the handle's edges, against live dependency states.
//
// A type-level requirement applies to every direct dependency of the
// named type; with no such dependency it evaluates to NotApplicable.
// An edge-scoped requirement applies to that edge's dependency only.
func (v *Validator) EvaluateConditions(h *agent.Handle, set proto.DependencySet) []proto.ConditionResult {
	results := make([]proto.ConditionResult, 0, len(set))

	for _, req := range set {
		results = append(results, v.evaluateTypeRequirement(h, req))
	}

	for dep := range h.Dependencies {
		req, ok := v.graph.EdgeRequirement(h.ID, dep)
		if !ok {
			continue
		}
		results = append(results, v.evaluateAgainst(dep, req))
	}

	return results
}

func (v *Validator) evaluateTypeRequirement(h *agent.Handle, req proto.StateRequirement) proto.ConditionResult {
	matched := false
	for dep := range h.Dependencies {
		dh, err := v.graph.Handle(dep)
		if err != nil || dh.Type != req.AgentType {
			continue
		}
		matched = true
		if !req.Allows(dh.State) {
			return proto.ConditionResult{
				Status:      proto.ConditionUnsatisfied,
				Requirement: req,
				Reason:      "dependency " + dep.String() + " is in state " + dh.State.String(),
			}
		}
	}

	if !matched {
		return proto.ConditionResult{
			Status:      proto.ConditionNotApplicable,
			Requirement: req,
			Reason:      "no dependency of type " + req.AgentType.String(),
		}
	}
	return proto.ConditionResult{Status: proto.ConditionSatisfied, Requirement: req}
}

func (v *Validator) evaluateAgainst(dep proto.AgentID, req proto.StateRequirement) proto.ConditionResult {
	dh, err := v.graph.Handle(dep)
	if err != nil {
		// A gone handle is a dangling dependency, not an unmet one; the
		// existence sweep in ValidateTransition reports the fatal kind.
		return proto.ConditionResult{
			Status:      proto.ConditionNotApplicable,
			Requirement: req,
			Reason:      "dependency " + dep.String() + " no longer exists",
		}
	}
	if !req.Allows(dh.State) {
		return proto.ConditionResult{
			Status:      proto.ConditionUnsatisfied,
			Requirement: req,
			Reason:      "dependency " + dep.String() + " is in state " + dh.State.String(),
		}
	}
	return proto.ConditionResult{Status: proto.ConditionSatisfied, Requirement: req}
}

// ValidateGraph runs the whole-graph consistency sweep: topological
// check for cycles, then capability checks for every requirement that
// names a skill. Run opportunistically after bulk changes, not on every
// mutation.
func (v *Validator) ValidateGraph() *ValidationError {
	if _, err := v.graph.TopologicalOrder(); err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			return newValidationError(KindCycleDetected, "", "%v", err)
		}
		return newValidationError(KindCycleDetected, "", "topological sweep failed: %v", err)
	}

	for _, h := range v.graph.All() {
		sg, err := v.types.Graph(h.Type)
		if err != nil {
			return newValidationError(KindUnknownAgent, h.ID,
				"agent %s has unregistered type %s", h.ID, h.Type)
		}
		for _, set := range sg.Requirements {
			for _, req := range set {
				if req.Skill == "" {
					continue
				}
				if !v.skills.Provides(req.AgentType, req.Skill) {
					r := req
					return &ValidationError{
						Kind:        KindUnsupportedCapability,
						AgentID:     h.ID,
						Requirement: &r,
						Detail: "type " + req.AgentType.String() +
							" does not register skill " + req.Skill,
					}
				}
			}
		}
	}

	return nil
}
