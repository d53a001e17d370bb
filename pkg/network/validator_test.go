package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentnet/pkg/agent"
	"agentnet/pkg/graph"
	"agentnet/pkg/proto"
	"agentnet/pkg/skills"
)

func newTestValidator(t *testing.T) (*Validator, *graph.Graph, *agent.Registry, *skills.Registry) {
	t.Helper()

	types := agent.NewRegistry()
	require.NoError(t, types.Register(builderType()))
	require.NoError(t, types.Register(coderType()))

	sk := skills.NewRegistry()
	sk.Register("builder", skills.Definition{Name: "compile"})

	g := graph.New()
	return NewValidator(g, types, sk), g, types, sk
}

func TestValidateTransitionUnknownAgent(t *testing.T) {
	v, _, _, _ := newTestValidator(t)

	ve := v.ValidateTransition(proto.NewAgentID(), "active")
	require.NotNil(t, ve)
	assert.Equal(t, KindUnknownAgent, ve.Kind)
}

func TestValidateTransitionRequirementEvaluation(t *testing.T) {
	v, g, _, _ := newTestValidator(t)

	a := g.Register("builder", "running")
	b := g.Register("coder", "waiting")
	require.NoError(t, g.AddEdge(b.ID, a.ID, nil))

	ve := v.ValidateTransition(b.ID, "active")
	require.NotNil(t, ve)
	assert.Equal(t, KindUnmetDependency, ve.Kind)

	require.NoError(t, g.SetState(a.ID, "completed"))
	assert.Nil(t, v.ValidateTransition(b.ID, "active"))
}

func TestValidateTransitionNotApplicableDoesNotBlock(t *testing.T) {
	v, g, _, _ := newTestValidator(t)

	// A coder with no builder dependency: the type-level requirement
	// has nothing to bind to and must not block.
	b := g.Register("coder", "waiting")
	assert.Nil(t, v.ValidateTransition(b.ID, "active"))
}

func TestEvaluateConditionsStatuses(t *testing.T) {
	v, g, _, _ := newTestValidator(t)

	a := g.Register("builder", "running")
	b := g.Register("coder", "waiting")
	require.NoError(t, g.AddEdge(b.ID, a.ID, nil))

	handle, err := g.Handle(b.ID)
	require.NoError(t, err)

	set := proto.DependencySet{
		{AgentType: "builder", RequiredStates: []proto.State{"completed"}},
		{AgentType: "reviewer", RequiredStates: []proto.State{"done"}},
	}
	results := v.EvaluateConditions(handle, set)
	require.Len(t, results, 2)
	assert.Equal(t, proto.ConditionUnsatisfied, results[0].Status)
	assert.Equal(t, proto.ConditionNotApplicable, results[1].Status)

	require.NoError(t, g.SetState(a.ID, "completed"))
	handle, err = g.Handle(b.ID)
	require.NoError(t, err)
	results = v.EvaluateConditions(handle, set)
	assert.Equal(t, proto.ConditionSatisfied, results[0].Status)
}

func TestValidateTransitionDanglingDependency(t *testing.T) {
	v, g, _, _ := newTestValidator(t)

	a := g.Register("builder", "running")
	b := g.Register("coder", "waiting")
	req := proto.StateRequirement{
		AgentType:      "builder",
		RequiredStates: []proto.State{"completed"},
	}
	require.NoError(t, g.AddEdge(b.ID, a.ID, &req))

	// Simulate an inconsistent restore: a forgets its dependent before
	// removal, so b keeps a dependency edge (and the requirement recorded
	// against it) pointing at a handle that no longer exists.
	ah, err := g.Handle(a.ID)
	require.NoError(t, err)
	ah.RemoveDependent(b.ID)
	g.Restore(ah)
	require.NoError(t, g.Remove(a.ID))

	// The gone handle is fatal and must surface as dangling, not as an
	// unmet requirement.
	ve := v.ValidateTransition(b.ID, "active")
	require.NotNil(t, ve)
	assert.Equal(t, KindDanglingDependency, ve.Kind)
}

func TestValidateGraphUnsupportedCapability(t *testing.T) {
	v, g, types, _ := newTestValidator(t)

	// A type whose gate names a skill the builder never registers.
	bad := agent.NewStateGraph("deployer", "waiting")
	bad.AddTransition("waiting", "deploying").
		AddTransition("deploying", "done").
		AddTerminal("done")
	bad.Require("waiting", "deploying", proto.StateRequirement{
		AgentType:      "builder",
		RequiredStates: []proto.State{"completed"},
		Skill:          "sign-artifacts",
	})
	require.NoError(t, types.Register(bad))
	g.Register("deployer", "waiting")

	ve := v.ValidateGraph()
	require.NotNil(t, ve)
	assert.Equal(t, KindUnsupportedCapability, ve.Kind)
}

func TestValidateGraphCleanSweep(t *testing.T) {
	v, g, _, _ := newTestValidator(t)

	a := g.Register("builder", "running")
	b := g.Register("coder", "waiting")
	require.NoError(t, g.AddEdge(b.ID, a.ID, nil))

	assert.Nil(t, v.ValidateGraph())
}
