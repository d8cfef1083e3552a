package models

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
// completed and failed are terminal.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// IsTerminal reports whether no further status transitions are allowed
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// Execution is a single run of a workflow
type Execution struct {
	ID         string          `json:"id"`
	WorkflowID int64           `json:"workflowId"`
	Status     ExecutionStatus `json:"status"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
	Data       map[string]any  `json:"data,omitempty"`
	Error      *string         `json:"error,omitempty"`
}

// ExecutionUpdate is a partial update applied to an execution row.
// Nil fields are left untouched.
type ExecutionUpdate struct {
	Status     *ExecutionStatus
	FinishedAt *time.Time
	Data       map[string]any
	Error      *string
}
