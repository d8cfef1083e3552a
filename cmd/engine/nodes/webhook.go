package nodes

import (
	"context"
	"time"

	"github.com/flowgrid/flowgrid/common/models"
)

// WebhookHandler handles trigger nodes. When the scheduler pre-seeded
// trigger data into the context the handler returns it verbatim;
// otherwise a synthetic stub stands in for the missing request.
type WebhookHandler struct{}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{}
}

// Handle implements Handler
func (h *WebhookHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	if seeded, ok := execContext[node.ID]; ok {
		return seeded, nil
	}

	return map[string]any{
		"received":  true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"body":      map[string]any{},
		"headers":   map[string]any{},
		"query":     map[string]any{},
	}, nil
}
