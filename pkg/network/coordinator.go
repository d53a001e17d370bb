package network

import (
	"errors"
	"sync"

	"agentnet/pkg/agent"
	"agentnet/pkg/graph"
	"agentnet/pkg/logx"
	"agentnet/pkg/proto"
	"agentnet/pkg/skills"
)

// Recorder receives operational measurements from the coordinator.
// pkg/metrics provides the Prometheus implementation; a nil recorder
// disables recording.
type Recorder interface {
	RecordTransition(agentType proto.AgentType, from, to proto.State, trigger proto.TriggerKind)
	RecordValidationFailure(kind ValidationKind)
	RecordPropagation(depth, advanced int)
	RecordPropagationStall(agentType proto.AgentType)
	RecordRecovery(action proto.RecoveryAction)
}

// Coordinator is the single mutation authority for the agent network.
// One mutex spans validate + apply + propagate, so external readers see
// either the pre-mutation graph or the fully propagated one, never an
// intermediate. Propagation waves are shallow for this workload, so the
// coarse lock is not a throughput concern.
type Coordinator struct {
	mu        sync.Mutex
	graph     *graph.Graph
	types     *agent.Registry
	skills    *skills.Registry
	validator *Validator
	policy    RecoveryPolicy
	recorder  Recorder
	logger    *logx.Logger

	subsMu      sync.RWMutex
	subscribers []chan *proto.NetworkEvent
}

// NewCoordinator assembles a coordinator over fresh or restored state.
func NewCoordinator(g *graph.Graph, types *agent.Registry, sk *skills.Registry, policy RecoveryPolicy, recorder Recorder) *Coordinator {
	return &Coordinator{
		graph:     g,
		types:     types,
		skills:    sk,
		validator: NewValidator(g, types, sk),
		policy:    policy.WithDefaults(),
		recorder:  recorder,
		logger:    logx.NewLogger("coordinator"),
	}
}

// Register creates a new agent of the given type in its initial state
// and emits a registration event.
func (c *Coordinator) Register(agentType proto.AgentType) (*agent.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	initial, err := c.types.InitialState(agentType)
	if err != nil {
		return nil, newValidationError(KindUnknownAgent, "", "cannot register agent: %v", err)
	}

	h := c.graph.Register(agentType, initial)
	c.logger.Info("registered agent %s (type=%s, state=%s)", h.ID, agentType, initial)

	event := proto.NewTransitionEvent(h.ID, "", initial, proto.TriggerRequest)
	c.publish(event)
	return h, nil
}

// RequestTransition validates and applies a state change, then runs the
// propagation wave over the agent's dependents. The returned event is
// the one emitted for the requested transition; propagation emits its
// own events. A rejected request leaves the graph unchanged.
func (c *Coordinator) RequestTransition(agentID proto.AgentID, to proto.State) (*proto.NetworkEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.applyTransition(agentID, to, proto.TriggerRequest, true)
}

// applyTransition is the locked transition path shared by direct
// requests and propagation. Caller holds c.mu.
func (c *Coordinator) applyTransition(agentID proto.AgentID, to proto.State, trigger proto.TriggerKind, propagate bool) (*proto.NetworkEvent, error) {
	h, err := c.graph.Handle(agentID)
	if err != nil {
		return nil, newValidationError(KindUnknownAgent, agentID, "agent %s is not registered", agentID)
	}

	if ve := c.validator.ValidateTransition(agentID, to); ve != nil {
		if c.recorder != nil {
			c.recorder.RecordValidationFailure(ve.Kind)
		}
		return nil, ve
	}

	from := h.State
	if err := c.graph.SetState(agentID, to); err != nil {
		return nil, newValidationError(KindUnknownAgent, agentID, "%v", err)
	}

	c.logger.Info("🔄 %s: %s → %s (%s)", agentID, from, to, trigger)
	if c.recorder != nil {
		c.recorder.RecordTransition(h.Type, from, to, trigger)
	}

	event := proto.NewTransitionEvent(agentID, from, to, trigger)
	c.publish(event)

	if propagate {
		c.propagateFrom(agentID)
	}
	return event, nil
}

// propagateFrom runs one breadth-first propagation wave starting at the
// dependents of origin. Each agent is visited at most once per wave,
// which bounds the wave on any finite DAG. A dependent advances only if
// its type auto-advances and exactly one guarded transition out of its
// current state is satisfied; rejections stop propagation at that node
// without failing the originating request.
func (c *Coordinator) propagateFrom(origin proto.AgentID) {
	visited := map[proto.AgentID]bool{origin: true}
	queue := c.graph.DependentsOf(origin)
	depth, advanced := 0, 0

	for len(queue) > 0 {
		depth++
		var next []proto.AgentID

		for _, id := range queue {
			if visited[id] {
				continue
			}
			visited[id] = true

			target, ok := c.autoAdvanceTarget(id)
			if !ok {
				continue
			}

			if _, err := c.applyTransition(id, target, proto.TriggerPropagation, false); err != nil {
				h, herr := c.graph.Handle(id)
				if herr == nil && c.recorder != nil {
					c.recorder.RecordPropagationStall(h.Type)
				}
				c.logger.Warn("propagation stopped at %s: %v", id, err)
				continue
			}
			advanced++
			next = append(next, c.graph.DependentsOf(id)...)
		}
		queue = next
	}

	if c.recorder != nil {
		c.recorder.RecordPropagation(depth, advanced)
	}
}

// autoAdvanceTarget returns the single satisfied guarded transition out
// of the agent's current state, if its type auto-advances and exactly
// one such transition exists.
func (c *Coordinator) autoAdvanceTarget(id proto.AgentID) (proto.State, bool) {
	h, err := c.graph.Handle(id)
	if err != nil {
		return "", false
	}
	sg, err := c.types.Graph(h.Type)
	if err != nil || !sg.AutoAdvance {
		return "", false
	}

	hasEdgeReqs := false
	for dep := range h.Dependencies {
		if _, ok := c.graph.EdgeRequirement(id, dep); ok {
			hasEdgeReqs = true
			break
		}
	}

	var candidates []proto.State
	for _, to := range sg.Transitions[h.State] {
		guarded := hasEdgeReqs
		for _, req := range sg.RequirementsFor(h.State, to) {
			if !req.Optional {
				guarded = true
				break
			}
		}
		if !guarded {
			// Unguarded transitions were never blocked; advancing them
			// automatically would make every wave unbounded.
			continue
		}
		if c.validator.ValidateTransition(id, to) == nil {
			candidates = append(candidates, to)
		}
	}

	if len(candidates) != 1 {
		return "", false
	}
	return candidates[0], true
}

// RequestEdge registers "from depends on to", optionally recording a
// requirement against the edge for future evaluations. A rejected edge
// leaves the graph unchanged.
func (c *Coordinator) RequestEdge(from, to proto.AgentID, req *proto.StateRequirement) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.graph.AddEdge(from, to, req); err != nil {
		ve := edgeValidationError(from, err)
		if c.recorder != nil {
			c.recorder.RecordValidationFailure(ve.Kind)
		}
		return ve
	}

	c.logger.Info("edge added: %s depends on %s", from, to)
	c.publish(proto.NewEdgeEvent(from, proto.EdgeAdded, to))
	return nil
}

// RemoveEdge drops the dependency edge and emits the change.
func (c *Coordinator) RemoveEdge(from, to proto.AgentID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.graph.RemoveEdge(from, to)
	c.publish(proto.NewEdgeEvent(from, proto.EdgeRemoved, to))
}

// PruneTerminal removes an agent that has reached a terminal state.
// Retention-for-audit is the default; pruning is an explicit decision.
func (c *Coordinator) PruneTerminal(agentID proto.AgentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, err := c.graph.Handle(agentID)
	if err != nil {
		return newValidationError(KindUnknownAgent, agentID, "agent %s is not registered", agentID)
	}
	if !c.types.IsTerminal(h.Type, h.State) {
		return newValidationError(KindInvalidTransition, agentID,
			"agent %s is in non-terminal state %s and cannot be pruned", agentID, h.State)
	}

	if err := c.graph.Remove(agentID); err != nil {
		return newValidationError(KindUnknownAgent, agentID, "%v", err)
	}
	c.logger.Info("pruned terminal agent %s (state=%s)", agentID, h.State)
	c.publish(proto.NewPruneEvent(agentID))
	return nil
}

// ValidateGraph runs the opportunistic whole-graph sweep.
func (c *Coordinator) ValidateGraph() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ve := c.validator.ValidateGraph(); ve != nil {
		if c.recorder != nil {
			c.recorder.RecordValidationFailure(ve.Kind)
		}
		return ve
	}
	return nil
}

// CanObserve reports whether observer holds a direct edge to subject.
func (c *Coordinator) CanObserve(observer, subject proto.AgentID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.CanObserve(observer, subject)
}

// DependentsOf returns the direct dependents of id.
func (c *Coordinator) DependentsOf(id proto.AgentID) []proto.AgentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.DependentsOf(id)
}

// DependenciesOf returns the direct dependencies of id.
func (c *Coordinator) DependenciesOf(id proto.AgentID) []proto.AgentID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.DependenciesOf(id)
}

// StateOf returns the current state of id.
func (c *Coordinator) StateOf(id proto.AgentID) (proto.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.StateOf(id)
}

// Handle returns a copy of the agent's handle.
func (c *Coordinator) Handle(id proto.AgentID) (*agent.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Handle(id)
}

// Agents returns copies of every handle in the network.
func (c *Coordinator) Agents() []*agent.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.All()
}

// Subscribe returns a channel receiving every emitted network event.
// Delivery is best-effort: a full subscriber drops events with a
// warning rather than blocking the mutation path.
func (c *Coordinator) Subscribe(buffer int) <-chan *proto.NetworkEvent {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan *proto.NetworkEvent, buffer)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subscribers = append(c.subscribers, ch)
	return ch
}

func (c *Coordinator) publish(event *proto.NetworkEvent) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()

	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			c.logger.Warn("subscriber channel full, dropping event %s for %s", event.ID, event.AgentID)
		}
	}
}

func edgeValidationError(from proto.AgentID, err error) *ValidationError {
	switch {
	case errors.Is(err, graph.ErrCycleDetected), errors.Is(err, graph.ErrSelfEdge):
		return newValidationError(KindCycleDetected, from, "%v", err)
	default:
		return newValidationError(KindUnknownAgent, from, "%v", err)
	}
}
