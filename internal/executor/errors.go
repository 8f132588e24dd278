package executor

import "errors"

var (
	// ErrDAGNotReady is returned by Execute when the DAG's status isn't
	// "success", or its stored Plan still needs clarification.
	ErrDAGNotReady = errors.New("executor: dag must be in success status with no pending clarification")

	// ErrNotResumable is returned by Resume when the execution isn't in
	// {suspended, failed}.
	ErrNotResumable = errors.New("executor: execution is not in a resumable state")

	// ErrDeadlock marks a malformed plan: no task is ready while tasks
	// remain outstanding.
	ErrDeadlock = errors.New("executor: no ready tasks remain but the plan is incomplete")

	// ErrToolNotFound is returned when a tool sub-task names an
	// unregistered tool.
	ErrToolNotFound = errors.New("executor: tool not found")

	// ErrAgentNotFound is returned when an inference sub-task references
	// an unknown or inactive agent.
	ErrAgentNotFound = errors.New("executor: inference task references an unknown or inactive agent")
)
