package nodes

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/flowgrid/flowgrid/cmd/engine/sandbox"
	"github.com/flowgrid/flowgrid/common/models"
)

// CodeHandler executes user JavaScript inside the sandbox. The script
// sees `items` (every upstream output), `$node` (this node's raw data)
// and the allowlisted `$env`.
type CodeHandler struct {
	sandbox *sandbox.Sandbox
}

// NewCodeHandler creates a code handler
func NewCodeHandler(s *sandbox.Sandbox) *CodeHandler {
	return &CodeHandler{sandbox: s}
}

// Handle implements Handler
func (h *CodeHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	code, _ := node.Data["code"].(string)
	if code == "" {
		return nil, NewHandlerError(ConfigMissing, fmt.Sprintf("node %s: code is required", node.ID))
	}

	items := make([]sandbox.Item, 0, len(execContext))
	for nodeID, output := range execContext {
		items = append(items, sandbox.Item{NodeID: nodeID, Output: output})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].NodeID < items[j].NodeID })

	result, err := h.sandbox.Run(ctx, node.ID, code, items, node.Data)
	if err != nil {
		if errors.Is(err, sandbox.ErrTimeout) {
			return nil, NewHandlerError(CodeTimeout, fmt.Sprintf("node %s: execution timed out", node.ID))
		}
		var runtimeErr *sandbox.RuntimeError
		if errors.As(err, &runtimeErr) {
			return nil, NewHandlerError(CodeRuntimeError, fmt.Sprintf("node %s: %s", node.ID, runtimeErr.Message))
		}
		return nil, NewHandlerError(CodeRuntimeError, fmt.Sprintf("node %s: %s", node.ID, err))
	}

	return result, nil
}
