package agent

import "errors"

var (
	// ErrUnknownAgentType indicates no state graph is registered for the type.
	ErrUnknownAgentType = errors.New("unknown agent type")

	// ErrInvalidStateGraph indicates a type definition violates the
	// state-graph invariants. This is a configuration error, not a
	// runtime error.
	ErrInvalidStateGraph = errors.New("invalid state graph definition")
)
