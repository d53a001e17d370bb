// Package watchdog periodically scans the network for agents that have
// stopped making progress and asks the coordinator for a recovery
// directive. It observes and reports; executing the directive is the
// caller's job.
package watchdog

import (
	"context"
	"time"

	"agentnet/pkg/agent"
	"agentnet/pkg/logx"
	"agentnet/pkg/network"
	"agentnet/pkg/proto"
)

// Report describes one stuck agent found during a scan, together with
// the recovery directive the coordinator chose for it.
type Report struct {
	AgentID   proto.AgentID
	AgentType proto.AgentType
	State     proto.State
	StuckFor  time.Duration
	Action    proto.RecoveryAction
	Evidence  string
}

type observation struct {
	state proto.State
	since time.Time
}

// Watchdog tracks how long each agent has sat in its current state.
type Watchdog struct {
	coord    *network.Coordinator
	types    *agent.Registry
	policy   network.RecoveryPolicy
	onReport func(Report)
	logger   *logx.Logger

	// Overridable for tests.
	now func() time.Time

	seen    map[proto.AgentID]observation
	retries map[proto.AgentID]int
}

// New creates a watchdog over the coordinator. onReport may be nil;
// reports are then only logged and counted.
func New(coord *network.Coordinator, types *agent.Registry, policy network.RecoveryPolicy, onReport func(Report)) *Watchdog {
	return &Watchdog{
		coord:    coord,
		types:    types,
		policy:   policy.WithDefaults(),
		onReport: onReport,
		logger:   logx.NewLogger("watchdog"),
		now:      time.Now,
		seen:     make(map[proto.AgentID]observation),
		retries:  make(map[proto.AgentID]int),
	}
}

// Run scans on the policy interval until the context is cancelled.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.policy.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reports := w.Scan(); len(reports) > 0 {
				w.logger.Warn("scan found %d stuck agents", len(reports))
			}
		}
	}
}

// Scan walks every agent once. An agent whose state changed since the
// last scan resets its clock and retry count; one that has sat past the
// stuck threshold in a non-terminal state gets a recovery directive.
func (w *Watchdog) Scan() []Report {
	now := w.now()
	handles := w.coord.Agents()

	live := make(map[proto.AgentID]bool, len(handles))
	var reports []Report

	for _, h := range handles {
		live[h.ID] = true

		obs, ok := w.seen[h.ID]
		if !ok || obs.state != h.State {
			w.seen[h.ID] = observation{state: h.State, since: now}
			delete(w.retries, h.ID)
			continue
		}

		if w.types.IsTerminal(h.Type, h.State) {
			continue
		}

		stuckFor := now.Sub(obs.since)
		if stuckFor < w.policy.StuckThreshold {
			continue
		}

		symptoms := network.Symptoms{
			StuckFor:        stuckFor,
			RetryCount:      w.retries[h.ID],
			DependencyStuck: w.dependencyStuck(h, now),
		}
		action := w.coord.DetermineRecovery(h.ID, symptoms)
		if action == proto.RecoveryRetry {
			w.retries[h.ID]++
		}

		report := Report{
			AgentID:   h.ID,
			AgentType: h.Type,
			State:     h.State,
			StuckFor:  stuckFor,
			Action:    action,
			Evidence:  w.evidence(h, stuckFor),
		}
		reports = append(reports, report)

		w.logger.Warn("⏱️ %s (%s) stuck in %s for %s: %s", h.ID, h.Type, h.State, stuckFor.Round(time.Second), action)
		if w.onReport != nil {
			w.onReport(report)
		}
	}

	// Forget pruned agents.
	for id := range w.seen {
		if !live[id] {
			delete(w.seen, id)
			delete(w.retries, id)
		}
	}
	return reports
}

// dependencyStuck reports whether any direct dependency has also been
// sitting past the threshold in a non-terminal state.
func (w *Watchdog) dependencyStuck(h *agent.Handle, now time.Time) bool {
	for dep := range h.Dependencies {
		obs, ok := w.seen[dep]
		if !ok {
			continue
		}
		dh, err := w.coord.Handle(dep)
		if err != nil {
			continue
		}
		if w.types.IsTerminal(dh.Type, dh.State) {
			continue
		}
		if now.Sub(obs.since) >= w.policy.StuckThreshold {
			return true
		}
	}
	return false
}

func (w *Watchdog) evidence(h *agent.Handle, stuckFor time.Duration) string {
	return "no transition for " + stuckFor.Round(time.Second).String() +
		" in state " + h.State.String() +
		" (threshold " + w.policy.StuckThreshold.String() + ")"
}
