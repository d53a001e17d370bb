package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EdgeOp describes what happened to a dependency edge.
type EdgeOp string

const (
	EdgeAdded   EdgeOp = "ADDED"
	EdgeRemoved EdgeOp = "REMOVED"
)

// EdgeChange records a mutation of the dependency edge set.
type EdgeChange struct {
	Op      EdgeOp  `json:"op"`
	OtherID AgentID `json:"other_id"`
}

// TriggerKind says why an event was emitted.
type TriggerKind string

const (
	// TriggerRequest marks a mutation issued directly by a collaborator.
	TriggerRequest TriggerKind = "request"
	// TriggerPropagation marks an auto-advance applied during a
	// propagation wave.
	TriggerPropagation TriggerKind = "propagation"
)

// NetworkEvent is the immutable record emitted on every accepted mutation.
// It is never mutated after emission.
type NetworkEvent struct {
	ID         string           `json:"id"`
	AgentID    AgentID          `json:"agent_id"`
	Transition *StateTransition `json:"transition,omitempty"`
	EdgeChange *EdgeChange      `json:"edge_change,omitempty"`
	Pruned     bool             `json:"pruned,omitempty"`
	Trigger    TriggerKind      `json:"trigger"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewTransitionEvent builds an event for an applied state transition.
func NewTransitionEvent(agentID AgentID, from, to State, trigger TriggerKind) *NetworkEvent {
	return &NetworkEvent{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		Transition: &StateTransition{From: from, To: to},
		Trigger:    trigger,
		Timestamp:  time.Now().UTC(),
	}
}

// NewEdgeEvent builds an event for an applied edge change.
func NewEdgeEvent(agentID AgentID, op EdgeOp, otherID AgentID) *NetworkEvent {
	return &NetworkEvent{
		ID:         uuid.New().String(),
		AgentID:    agentID,
		EdgeChange: &EdgeChange{Op: op, OtherID: otherID},
		Trigger:    TriggerRequest,
		Timestamp:  time.Now().UTC(),
	}
}

// NewPruneEvent builds an event for the removal of a terminal agent.
func NewPruneEvent(agentID AgentID) *NetworkEvent {
	return &NetworkEvent{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Pruned:    true,
		Trigger:   TriggerRequest,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the event to a single JSON document.
func (e *NetworkEvent) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal network event %s: %w", e.ID, err)
	}
	return data, nil
}

// EventFromJSON parses a serialized network event.
func EventFromJSON(data []byte) (*NetworkEvent, error) {
	var e NetworkEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal network event: %w", err)
	}
	return &e, nil
}
