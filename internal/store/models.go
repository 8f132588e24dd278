// Package store defines the durable persistence schema backing agents,
// DAGs, executions, sub-steps, and stop requests, plus the Store interface
// that the planner, executor, and stop coordinator depend on. The SQLite
// implementation lives in sqlite.go; storetest provides an in-memory fake
// for unit tests.
package store

import (
	"time"

	"github.com/dagplan/dagplan/internal/llm"
)

// AgentStatus values.
const (
	AgentActive   = true
	AgentInactive = false
)

// Agent is a named, versioned planning persona: a system-prompt template
// bound to a default provider/model.
type Agent struct {
	ID             string
	Name           string
	Version        int
	PromptTemplate string
	Provider       string
	Model          string
	Active         bool
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DAGStatus is the lifecycle state of a planned DAG row.
type DAGStatus string

const (
	DAGStatusPending         DAGStatus = "pending"
	DAGStatusSuccess         DAGStatus = "success"
	DAGStatusValidationError DAGStatus = "validation_error"
	DAGStatusFailed          DAGStatus = "failed"
)

// DAG is a persisted plan: the task graph, planning metadata, and
// (optionally) a cron schedule.
type DAG struct {
	ID                   string
	Status               DAGStatus
	Result               *Plan
	Usage                llm.Usage
	GenerationStats      llm.GenerationStats
	Attempts             int
	Params               map[string]any
	AgentName            string
	DAGTitle             string
	CronSchedule         string
	ScheduleActive       bool
	LastRunAt            *time.Time
	Timezone             string
	PlanningTotalUsage   llm.Usage
	PlanningTotalCostUSD string
	PlanningAttempts     []PlanningAttempt
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PlanningAttempt records one decomposer round-trip for audit/debugging.
// Reason is one of "initial" | "retry_gaps" | "retry_parse_error" |
// "retry_validation" | "title_master".
type PlanningAttempt struct {
	Attempt    int       `json:"attempt"`
	Reason     string    `json:"reason,omitempty"`
	RawContent string    `json:"rawContent"`
	Error      string    `json:"error,omitempty"`
	Coverage   string    `json:"coverage,omitempty"`
	At         time.Time `json:"at"`
}

// Plan is the task graph produced by the decomposer. It is marshaled
// to/from JSON for the `result` column.
type Plan struct {
	OriginalRequest     string     `json:"originalRequest,omitempty"`
	PrimaryIntent       string     `json:"primaryIntent,omitempty"`
	SubIntents          []string   `json:"subIntents,omitempty"`
	Entities            []string   `json:"entities,omitempty"`
	SynthesisPlan       string     `json:"synthesisPlan,omitempty"`
	Tasks               []PlanTask `json:"tasks"`
	ClarificationNeeded bool       `json:"clarificationNeeded,omitempty"`
	ClarificationQuery  string     `json:"clarificationQuery,omitempty"`
	Coverage            string     `json:"coverage,omitempty"`
	CoverageGaps        []string   `json:"coverageGaps,omitempty"`
	IterationTriggers   []string   `json:"iterationTriggers,omitempty"`
}

// PlanTask is one node of a Plan.
type PlanTask struct {
	ID           string         `json:"id"`
	Description  string         `json:"description"`
	Thought      string         `json:"thought,omitempty"`
	ActionType   string         `json:"actionType"` // "tool" | "inference"
	Name         string         `json:"name"`        // tool name or prompt persona
	Params       map[string]any `json:"params"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// ExecutionStatus is the lifecycle state of a DAGExecution row.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionWaiting   ExecutionStatus = "waiting"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionSuspended ExecutionStatus = "suspended"
)

// Execution is one run of a DAG.
type Execution struct {
	ID               string
	DAGID            string
	OriginalRequest  string
	PrimaryIntent    string
	Status           ExecutionStatus
	StartedAt        *time.Time
	CompletedAt      *time.Time
	DurationMs       int64
	TotalTasks       int
	CompletedTasks   int
	FailedTasks      int
	WaitingTasks     int
	FinalResult      string
	SynthesisResult  string
	SuspendedReason  string
	SuspendedAt      *time.Time
	RetryCount       int
	LastRetryAt      *time.Time
	TotalUsage       llm.Usage
	TotalCostUSD     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubStepStatus is the lifecycle state of a single task within an
// execution. Transitions are monotone: pending -> running -> (completed |
// failed), or running -> pending only via stop-handling. waiting and
// deleted belong to the status set, but no code path in this module
// assigns either of them.
type SubStepStatus string

const (
	SubStepPending   SubStepStatus = "pending"
	SubStepRunning   SubStepStatus = "running"
	SubStepWaiting   SubStepStatus = "waiting"
	SubStepCompleted SubStepStatus = "completed"
	SubStepFailed    SubStepStatus = "failed"
	SubStepDeleted   SubStepStatus = "deleted"
)

// SynthesisTaskID is the reserved pseudo task-id used for the post-wave
// synthesis step's cost/usage accounting.
const SynthesisTaskID = "__SYNTHESIS__"

// SubStep is one executed (or pending) node of an Execution's task graph.
type SubStep struct {
	ID                 string
	ExecutionID        string
	TaskID             string
	Description        string
	Thought            string
	ActionType         string
	ToolOrPromptName   string
	ToolOrPromptParams map[string]any
	Dependencies       []string
	Status             SubStepStatus
	StartedAt          *time.Time
	CompletedAt        *time.Time
	DurationMs         int64
	Result             any
	Error              string
	Usage              llm.Usage
	CostUSD            *string
	GenerationStats    llm.GenerationStats
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// StopRequestStatus is the lifecycle state of a stop request.
type StopRequestStatus string

const (
	StopRequestPending StopRequestStatus = "pending"
	StopRequestHandled StopRequestStatus = "handled"
)

// StopRequest is a persisted cooperative stop signal, scoped to exactly
// one of DAGID or ExecutionID.
type StopRequest struct {
	ID          string
	DAGID       *string
	ExecutionID *string
	Status      StopRequestStatus
	RequestedAt time.Time
	HandledAt   *time.Time
}
