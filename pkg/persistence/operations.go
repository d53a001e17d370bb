package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agentnet/pkg/agent"
	"agentnet/pkg/proto"
)

// Store provides the snapshot and journal operations over one database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an initialized database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertAgent writes the current snapshot of one handle. Dependencies
// are stored as a JSON array of IDs; dependents are rebuilt on load
// from the symmetric view.
func (s *Store) UpsertAgent(h *agent.Handle) error {
	deps := make([]string, 0, len(h.Dependencies))
	for id := range h.Dependencies {
		deps = append(deps, id.String())
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return fmt.Errorf("failed to marshal dependencies for %s: %w", h.ID, err)
	}

	query := `
		INSERT INTO agents (id, agent_type, state, dependencies, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_type = excluded.agent_type,
			state = excluded.state,
			dependencies = excluded.dependencies,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, h.ID.String(), h.Type.String(), h.State.String(),
		string(depsJSON), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert agent %s: %w", h.ID, err)
	}
	return nil
}

// DeleteAgent removes a pruned agent's snapshot.
func (s *Store) DeleteAgent(id proto.AgentID) error {
	if _, err := s.db.Exec(`DELETE FROM agents WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete agent %s: %w", id, err)
	}
	return nil
}

// LoadAgents reads every persisted handle and rebuilds the symmetric
// dependent sets from the stored dependency lists.
func (s *Store) LoadAgents() ([]*agent.Handle, error) {
	rows, err := s.db.Query(`SELECT id, agent_type, state, dependencies FROM agents`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[proto.AgentID]*agent.Handle)
	var handles []*agent.Handle

	for rows.Next() {
		var id, agentType, state, depsJSON string
		if err := rows.Scan(&id, &agentType, &state, &depsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan agent row: %w", err)
		}

		var deps []string
		if err := json.Unmarshal([]byte(depsJSON), &deps); err != nil {
			return nil, fmt.Errorf("failed to parse dependencies for %s: %w", id, err)
		}

		h := &agent.Handle{
			ID:           proto.AgentID(id),
			Type:         proto.AgentType(agentType),
			State:        proto.State(state),
			Dependencies: make(map[proto.AgentID]struct{}, len(deps)),
			Dependents:   make(map[proto.AgentID]struct{}),
		}
		for _, dep := range deps {
			h.Dependencies[proto.AgentID(dep)] = struct{}{}
		}
		byID[h.ID] = h
		handles = append(handles, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate agent rows: %w", err)
	}

	for _, h := range handles {
		for dep := range h.Dependencies {
			if other, ok := byID[dep]; ok {
				other.AddDependent(h.ID)
			}
		}
	}
	return handles, nil
}

// InsertEvent journals one network event.
func (s *Store) InsertEvent(e *proto.NetworkEvent) error {
	var fromState, toState, edgeOp, otherID sql.NullString
	if e.Transition != nil {
		fromState = sql.NullString{String: e.Transition.From.String(), Valid: true}
		toState = sql.NullString{String: e.Transition.To.String(), Valid: true}
	}
	if e.EdgeChange != nil {
		edgeOp = sql.NullString{String: string(e.EdgeChange.Op), Valid: true}
		otherID = sql.NullString{String: e.EdgeChange.OtherID.String(), Valid: true}
	}

	query := `
		INSERT INTO network_events (id, agent_id, from_state, to_state, edge_op, other_id, pruned, trigger, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, e.ID, e.AgentID.String(), fromState, toState,
		edgeOp, otherID, e.Pruned, string(e.Trigger), e.Timestamp); err != nil {
		return fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}
	return nil
}

// EventsForAgent returns the journaled events for one agent, oldest first.
func (s *Store) EventsForAgent(id proto.AgentID) ([]*proto.NetworkEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, agent_id, from_state, to_state, edge_op, other_id, pruned, trigger, timestamp
		FROM network_events WHERE agent_id = ? ORDER BY timestamp ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query events for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// RecentEvents returns the newest events across the network, newest first.
func (s *Store) RecentEvents(limit int) ([]*proto.NetworkEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, agent_id, from_state, to_state, edge_op, other_id, pruned, trigger, timestamp
		FROM network_events ORDER BY timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*proto.NetworkEvent, error) {
	var events []*proto.NetworkEvent
	for rows.Next() {
		var (
			e                                  proto.NetworkEvent
			agentID, trigger                   string
			fromState, toState, edgeOp, otherID sql.NullString
		)
		if err := rows.Scan(&e.ID, &agentID, &fromState, &toState, &edgeOp, &otherID, &e.Pruned, &trigger, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.AgentID = proto.AgentID(agentID)
		e.Trigger = proto.TriggerKind(trigger)
		if fromState.Valid || toState.Valid {
			e.Transition = &proto.StateTransition{
				From: proto.State(fromState.String),
				To:   proto.State(toState.String),
			}
		}
		if edgeOp.Valid {
			e.EdgeChange = &proto.EdgeChange{
				Op:      proto.EdgeOp(edgeOp.String),
				OtherID: proto.AgentID(otherID.String),
			}
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}
