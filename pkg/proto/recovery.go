package proto

// RecoveryAction is a directive chosen in response to a stuck or
// inconsistent agent. It is a decision, not a mutation: applying it
// requires a further coordinator call by an external executor.
type RecoveryAction string

const (
	// RecoveryRetry re-requests the blocked transition.
	RecoveryRetry RecoveryAction = "RETRY"
	// RecoveryEscalateToParent hands the problem to the agent's
	// dependents instead of retrying indefinitely.
	RecoveryEscalateToParent RecoveryAction = "ESCALATE_TO_PARENT"
	// RecoverySpawnFixer asks the executor to create a remedial agent.
	RecoverySpawnFixer RecoveryAction = "SPAWN_FIXER"
	// RecoveryPauseAndAlert stops automatic handling and pages a human.
	RecoveryPauseAndAlert RecoveryAction = "PAUSE_AND_ALERT"
	// RecoveryWait leaves the agent alone; the blocking dependency is
	// still making progress.
	RecoveryWait RecoveryAction = "WAIT"
	// RecoveryAbort transitions the agent to a terminal failure state.
	RecoveryAbort RecoveryAction = "ABORT"
)

func (a RecoveryAction) String() string {
	return string(a)
}
