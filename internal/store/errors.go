package store

import "errors"

// Sentinel errors returned by Store implementations. Wrap with fmt.Errorf
// and %w when additional context is useful; callers branch with errors.Is.
var (
	ErrAgentNotFound       = errors.New("agent not found")
	ErrAgentAlreadyActive  = errors.New("an active agent with this name already exists")
	ErrInvalidAgentName    = errors.New("invalid agent name")
	ErrDAGNotFound         = errors.New("dag not found")
	ErrDAGInUse            = errors.New("dag is referenced by one or more executions")
	ErrExecutionNotFound   = errors.New("execution not found")
	ErrSubStepNotFound     = errors.New("sub-step not found")
	ErrStopRequestNotFound = errors.New("stop request not found")
	ErrInvalidStopRequest  = errors.New("stop request must reference exactly one of dag_id or execution_id")
)
