package store

import "context"

// AgentStore persists Agent rows. At most one row per Name may have
// Active = true (spec P7); implementations must enforce this atomically.
type AgentStore interface {
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetActiveAgentByName(ctx context.Context, name string) (*Agent, error)
	ListAgents(ctx context.Context) ([]*Agent, error)
	Activate(ctx context.Context, id string) error
	UpdateAgent(ctx context.Context, agent *Agent) error
	DeleteAgent(ctx context.Context, id string) error
}

// DAGStore persists DAG rows.
type DAGStore interface {
	CreateDAG(ctx context.Context, dag *DAG) error
	GetDAG(ctx context.Context, id string) (*DAG, error)
	UpdateDAG(ctx context.Context, dag *DAG) error
	ListScheduledDAGs(ctx context.Context) ([]*DAG, error)
	// DeleteDAG returns ErrDAGInUse if any execution references id.
	DeleteDAG(ctx context.Context, id string) error
}

// ExecutionFilter narrows ListExecutions.
type ExecutionFilter struct {
	DAGID  string
	Status ExecutionStatus
}

// ExecutionStore persists Execution rows.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	UpdateExecution(ctx context.Context, exec *Execution) error
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error)
	// DeleteExecution cascades to its sub-steps.
	DeleteExecution(ctx context.Context, id string) error
}

// SubStepStore persists SubStep rows, scoped per (executionID, taskID).
type SubStepStore interface {
	CreateSubStep(ctx context.Context, step *SubStep) error
	GetSubStep(ctx context.Context, executionID, taskID string) (*SubStep, error)
	UpdateSubStep(ctx context.Context, step *SubStep) error
	ListSubSteps(ctx context.Context, executionID string) ([]*SubStep, error)
}

// StopRequestStore persists cooperative stop signals.
type StopRequestStore interface {
	CreateStopRequest(ctx context.Context, req *StopRequest) error
	// PendingForDAG/PendingForExecution return nil, nil when none is pending.
	PendingForDAG(ctx context.Context, dagID string) (*StopRequest, error)
	PendingForExecution(ctx context.Context, executionID string) (*StopRequest, error)
	MarkHandled(ctx context.Context, id string) error
}

// Store aggregates every table's interface. Planner, executor, and
// stopcoord depend on this (or a narrower sub-interface), never on the
// SQLite type directly.
type Store interface {
	AgentStore
	DAGStore
	ExecutionStore
	SubStepStore
	StopRequestStore

	// Close releases underlying resources (e.g. the DB connection pool).
	Close() error
}
