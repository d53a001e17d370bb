package graph

import (
	"fmt"

	"agentnet/pkg/proto"
)

// TopologicalOrder returns the agents ordered dependencies-first using
// Kahn's algorithm. AddEdge guards the DAG invariant, so the cycle
// error here is defensive and should be unreachable; the validator
// still runs this as a whole-graph sweep.
func (g *Graph) TopologicalOrder() ([]proto.AgentID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDeg := make(map[proto.AgentID]int, len(g.handles))
	for id, h := range g.handles {
		inDeg[id] = len(h.Dependencies)
	}

	var queue []proto.AgentID
	for id, deg := range inDeg {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]proto.AgentID, 0, len(g.handles))
	for len(queue) > 0 {
		var next []proto.AgentID
		for _, id := range queue {
			order = append(order, id)
			for dep := range g.handles[id].Dependents {
				inDeg[dep]--
				if inDeg[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		queue = next
	}

	if len(order) != len(g.handles) {
		return nil, fmt.Errorf("%w: ordered %d of %d agents",
			ErrCycleDetected, len(order), len(g.handles))
	}
	return order, nil
}
