package models

import "time"

// NodeStatus is the per-node execution state inside a progress snapshot
type NodeStatus string

const (
	NodePending NodeStatus = "pending"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeError   NodeStatus = "error"
	NodeSkipped NodeStatus = "skipped"
)

// NodeProgress is the in-flight state of a single node
type NodeProgress struct {
	NodeID     string     `json:"nodeId"`
	Status     NodeStatus `json:"status"`
	Output     any        `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// ExecutionProgress is the full snapshot broadcast on every scheduler
// state change. It is ephemeral and never persisted as a row.
type ExecutionProgress struct {
	ExecutionID string          `json:"executionId"`
	WorkflowID  int64           `json:"workflowId"`
	Status      ExecutionStatus `json:"status"`
	Nodes       []NodeProgress  `json:"nodes"`
	Error       string          `json:"error,omitempty"`
}

// Clone returns a deep-enough copy for safe hand-off to subscribers.
// Node outputs are shared; subscribers must treat them as read-only.
func (p *ExecutionProgress) Clone() *ExecutionProgress {
	out := *p
	out.Nodes = make([]NodeProgress, len(p.Nodes))
	copy(out.Nodes, p.Nodes)
	return &out
}
