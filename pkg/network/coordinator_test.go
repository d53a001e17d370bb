package network

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentnet/pkg/agent"
	"agentnet/pkg/graph"
	"agentnet/pkg/proto"
	"agentnet/pkg/skills"
)

// builderType is a producer with no gates: running → completed.
func builderType() *agent.StateGraph {
	g := agent.NewStateGraph("builder", "running")
	g.AddTransition("running", "completed").
		AddTransition("running", "failed").
		AddTerminal("completed").
		AddTerminal("failed")
	return g
}

// coderType auto-advances waiting → active once its builder dependency
// completes, then finishes manually.
func coderType() *agent.StateGraph {
	g := agent.NewStateGraph("coder", "waiting")
	g.AddTransition("waiting", "active").
		AddTransition("active", "done").
		AddTerminal("done")
	g.Require("waiting", "active", proto.StateRequirement{
		AgentType:      "builder",
		RequiredStates: []proto.State{"completed"},
	})
	g.AutoAdvance = true
	return g
}

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()

	types := agent.NewRegistry()
	require.NoError(t, types.Register(builderType()))
	require.NoError(t, types.Register(coderType()))

	sk := skills.NewRegistry()
	sk.Register("builder", skills.Definition{Name: "compile"})

	policy := RecoveryPolicy{
		StuckThreshold: 10 * time.Minute,
		RetryBudget:    3,
		ScanInterval:   time.Minute,
	}
	return NewCoordinator(graph.New(), types, sk, policy, nil)
}

func TestRegisterStartsInInitialState(t *testing.T) {
	c := newTestCoordinator(t)

	h, err := c.Register("coder")
	require.NoError(t, err)
	assert.Equal(t, proto.State("waiting"), h.State)

	state, err := c.StateOf(h.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.State("waiting"), state)

	_, err = c.Register("reviewer")
	assert.Error(t, err, "unknown type must not register")
}

func TestLinearChainAutoAdvance(t *testing.T) {
	c := newTestCoordinator(t)
	events := c.Subscribe(16)

	a, err := c.Register("builder")
	require.NoError(t, err)
	b, err := c.Register("coder")
	require.NoError(t, err)
	require.NoError(t, c.RequestEdge(b.ID, a.ID, nil))

	// Drain registration and edge events.
	for len(events) > 0 {
		<-events
	}

	_, err = c.RequestTransition(a.ID, "completed")
	require.NoError(t, err)

	// B auto-advanced in the same wave.
	state, err := c.StateOf(b.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.State("active"), state)

	// Both transitions are on the stream, A's first.
	first := <-events
	require.NotNil(t, first.Transition)
	assert.Equal(t, a.ID, first.AgentID)
	assert.Equal(t, proto.TriggerRequest, first.Trigger)

	second := <-events
	require.NotNil(t, second.Transition)
	assert.Equal(t, b.ID, second.AgentID)
	assert.Equal(t, proto.TriggerPropagation, second.Trigger)
	assert.Equal(t, proto.State("active"), second.Transition.To)
}

func TestBlockedDependency(t *testing.T) {
	c := newTestCoordinator(t)

	a, err := c.Register("builder")
	require.NoError(t, err)
	b, err := c.Register("coder")
	require.NoError(t, err)
	require.NoError(t, c.RequestEdge(b.ID, a.ID, nil))

	// A is still running, so B's guarded transition is unmet.
	_, err = c.RequestTransition(b.ID, "active")
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok, "expected *ValidationError, got %T", err)
	assert.Equal(t, KindUnmetDependency, ve.Kind)
	require.NotNil(t, ve.Requirement)
	assert.Equal(t, proto.AgentType("builder"), ve.Requirement.AgentType)

	// Rejection left B untouched.
	state, err := c.StateOf(b.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.State("waiting"), state)
}

func TestCycleRejectionLeavesGraphUnchanged(t *testing.T) {
	c := newTestCoordinator(t)

	a, err := c.Register("builder")
	require.NoError(t, err)
	b, err := c.Register("coder")
	require.NoError(t, err)

	require.NoError(t, c.RequestEdge(a.ID, b.ID, nil))

	err = c.RequestEdge(b.ID, a.ID, nil)
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, KindCycleDetected, ve.Kind)

	assert.Empty(t, c.DependenciesOf(b.ID), "rejected edge must not appear")
	assert.Empty(t, c.DependentsOf(a.ID), "rejected edge must not appear")
}

func TestInvalidTransitionSurfaced(t *testing.T) {
	c := newTestCoordinator(t)

	a, err := c.Register("builder")
	require.NoError(t, err)

	_, err = c.RequestTransition(a.ID, "waiting")
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, KindInvalidTransition, ve.Kind)

	state, err := c.StateOf(a.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.State("running"), state)
}

func TestPropagationVisitsEachNodeOnce(t *testing.T) {
	c := newTestCoordinator(t)

	// Diamond: d1 and d2 depend on a; sink depends on both.
	a, err := c.Register("builder")
	require.NoError(t, err)
	d1, err := c.Register("coder")
	require.NoError(t, err)
	d2, err := c.Register("coder")
	require.NoError(t, err)
	sink, err := c.Register("coder")
	require.NoError(t, err)

	require.NoError(t, c.RequestEdge(d1.ID, a.ID, nil))
	require.NoError(t, c.RequestEdge(d2.ID, a.ID, nil))
	require.NoError(t, c.RequestEdge(sink.ID, d1.ID, nil))
	require.NoError(t, c.RequestEdge(sink.ID, d2.ID, nil))

	events := c.Subscribe(32)
	_, err = c.RequestTransition(a.ID, "completed")
	require.NoError(t, err)

	// The wave terminated and emitted at most one transition per agent.
	counts := make(map[proto.AgentID]int)
	for len(events) > 0 {
		ev := <-events
		if ev.Transition != nil {
			counts[ev.AgentID]++
		}
	}
	for id, n := range counts {
		assert.LessOrEqual(t, n, 1, "agent %s transitioned %d times in one wave", id, n)
	}
	assert.Equal(t, 1, counts[d1.ID])
	assert.Equal(t, 1, counts[d2.ID])
}

func TestPruneTerminal(t *testing.T) {
	c := newTestCoordinator(t)

	a, err := c.Register("builder")
	require.NoError(t, err)

	err = c.PruneTerminal(a.ID)
	require.Error(t, err, "non-terminal agent must not be pruned")

	_, err = c.RequestTransition(a.ID, "completed")
	require.NoError(t, err)
	require.NoError(t, c.PruneTerminal(a.ID))

	_, err = c.StateOf(a.ID)
	assert.Error(t, err)
}

func TestCanObserveIsDirectEdgeOnly(t *testing.T) {
	c := newTestCoordinator(t)

	a, err := c.Register("builder")
	require.NoError(t, err)
	b, err := c.Register("coder")
	require.NoError(t, err)
	d, err := c.Register("coder")
	require.NoError(t, err)

	// d → b → a.
	require.NoError(t, c.RequestEdge(b.ID, a.ID, nil))
	require.NoError(t, c.RequestEdge(d.ID, b.ID, nil))

	assert.True(t, c.CanObserve(b.ID, a.ID))
	assert.True(t, c.CanObserve(d.ID, b.ID))
	assert.False(t, c.CanObserve(d.ID, a.ID), "transitive observation must be denied")
	assert.False(t, c.CanObserve(a.ID, b.ID))
}

func TestEdgeScopedRequirement(t *testing.T) {
	c := newTestCoordinator(t)

	// builder-on-builder dependency with an edge requirement: the
	// dependent may not leave running until the dependency completes.
	a, err := c.Register("builder")
	require.NoError(t, err)
	b, err := c.Register("builder")
	require.NoError(t, err)

	req := proto.StateRequirement{
		AgentType:      "builder",
		RequiredStates: []proto.State{"completed"},
	}
	require.NoError(t, c.RequestEdge(b.ID, a.ID, &req))

	_, err = c.RequestTransition(b.ID, "completed")
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Equal(t, KindUnmetDependency, ve.Kind)

	_, err = c.RequestTransition(a.ID, "completed")
	require.NoError(t, err)
	_, err = c.RequestTransition(b.ID, "completed")
	assert.NoError(t, err)
}
