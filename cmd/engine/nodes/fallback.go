package nodes

import (
	"context"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// FallbackHandler tolerates unknown node kinds in persisted workflows
// by echoing their data without contacting any external system.
type FallbackHandler struct {
	log *logger.Logger
}

// NewFallbackHandler creates the fallback handler
func NewFallbackHandler(log *logger.Logger) *FallbackHandler {
	return &FallbackHandler{log: log}
}

// Handle implements Handler
func (h *FallbackHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	h.log.Warn("no handler for node type, echoing data",
		"node_id", node.ID,
		"node_type", node.Type)

	output := make(map[string]any, len(node.Data)+2)
	for k, v := range node.Data {
		output[k] = v
	}
	output["executed"] = true
	output["nodeType"] = node.Type

	return output, nil
}
