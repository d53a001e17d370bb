package network

import (
	"time"

	"agentnet/pkg/proto"
)

// RecoveryPolicy holds the thresholds the recovery decision table is
// parameterized on.
type RecoveryPolicy struct {
	// StuckThreshold is how long an agent may sit in a non-terminal,
	// non-advancing state before it is considered stuck.
	StuckThreshold time.Duration `yaml:"stuck_threshold"`

	// RetryBudget is how many retries an agent gets before a blocked
	// transition escalates instead of retrying again.
	RetryBudget int `yaml:"retry_budget"`

	// ScanInterval is how often the watchdog sweeps the network.
	ScanInterval time.Duration `yaml:"scan_interval"`
}

// WithDefaults fills unset fields with the default thresholds.
func (p RecoveryPolicy) WithDefaults() RecoveryPolicy {
	if p.StuckThreshold <= 0 {
		p.StuckThreshold = 15 * time.Minute
	}
	if p.RetryBudget <= 0 {
		p.RetryBudget = 3
	}
	if p.ScanInterval <= 0 {
		p.ScanInterval = time.Minute
	}
	return p
}

// Symptoms carries what an external stuck/anomaly detector observed
// about one agent. The coordinator maps symptoms to a directive; it
// never executes one.
type Symptoms struct {
	// StuckFor is how long the agent has been in its current state with
	// no satisfied outgoing transition.
	StuckFor time.Duration

	// RetryCount is how many recovery retries have already been issued
	// for this agent in its current state.
	RetryCount int

	// DependencyStuck marks a dependency sitting in a non-terminal,
	// non-advancing state past the policy threshold.
	DependencyStuck bool

	// DependencyMissing marks a dependency edge whose target handle is
	// gone from the graph.
	DependencyMissing bool

	// ConfigInvalid marks a whole-graph validation failure touching
	// this agent (cycle, unsupported capability).
	ConfigInvalid bool

	// WorkFailed marks an agent whose last unit of work failed outright
	// rather than stalling.
	WorkFailed bool
}

// DetermineRecovery maps observed symptoms to a recovery directive.
// The decision is total: there is always some directive, worst case
// PauseAndAlert, because an operator path must always exist.
func (c *Coordinator) DetermineRecovery(agentID proto.AgentID, s Symptoms) proto.RecoveryAction {
	c.mu.Lock()
	defer c.mu.Unlock()

	action := c.decideRecovery(agentID, s)
	c.logger.Info("recovery for %s: %s (stuck=%s retries=%d)", agentID, action, s.StuckFor, s.RetryCount)
	if c.recorder != nil {
		c.recorder.RecordRecovery(action)
	}
	return action
}

// decideRecovery applies the precedence table. Caller holds c.mu.
func (c *Coordinator) decideRecovery(agentID proto.AgentID, s Symptoms) proto.RecoveryAction {
	h, err := c.graph.Handle(agentID)
	if err != nil {
		// Nothing left to recover; a human should decide what the
		// caller was tracking.
		return proto.RecoveryPauseAndAlert
	}

	// Terminal agents are done; there is nothing to advance.
	if c.types.IsTerminal(h.Type, h.State) {
		return proto.RecoveryWait
	}

	if s.ConfigInvalid {
		return proto.RecoveryPauseAndAlert
	}
	if s.DependencyMissing {
		return proto.RecoveryAbort
	}

	hasParent := len(h.Dependents) > 0

	// An exhausted retry budget escalates rather than retrying forever.
	if s.RetryCount >= c.policy.RetryBudget {
		if hasParent {
			return proto.RecoveryEscalateToParent
		}
		return proto.RecoveryPauseAndAlert
	}

	// A permanently stuck dependency cannot be fixed by retrying here.
	if s.DependencyStuck && s.StuckFor >= c.policy.StuckThreshold {
		if hasParent {
			return proto.RecoveryEscalateToParent
		}
		return proto.RecoveryPauseAndAlert
	}

	if s.WorkFailed {
		return proto.RecoverySpawnFixer
	}

	if s.StuckFor >= c.policy.StuckThreshold {
		return proto.RecoveryRetry
	}

	// Under threshold: the agent may simply be waiting its turn.
	if s.StuckFor > 0 {
		return proto.RecoveryWait
	}

	return proto.RecoveryPauseAndAlert
}
