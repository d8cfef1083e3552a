package models

import (
	"encoding/json"
	"time"
)

// Node types understood by the engine. Persisted workflows may carry
// unknown types; those are dispatched to the fallback handler.
const (
	NodeTypeWebhook     = "webhook"
	NodeTypeHTTPRequest = "http-request"
	NodeTypeCode        = "code"
	NodeTypeAIChat      = "ai-chat"
	NodeTypeDatabase    = "database"
	NodeTypeEmail       = "email"
)

// Workflow is the persisted graph document authored by the editor
type Workflow struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Node is a single typed step in a workflow
type Node struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position json.RawMessage `json:"position,omitempty"` // opaque layout metadata
	Data     map[string]any  `json:"data"`
}

// Edge is a directed dependency: Target may execute only after Source
// has succeeded. Condition, when set, is a CEL expression evaluated
// against the source node's output; false prunes the target subtree.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	TargetHandle string `json:"targetHandle,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

// NodeByID returns the node with the given id, or nil
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}
