package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/common/clients"
	"github.com/flowgrid/flowgrid/common/models"
)

// AIChatHandler executes ai-chat nodes against the configured
// chat-completions provider.
type AIChatHandler struct {
	resolver *resolver.Resolver
	llm      *clients.LLMClient
	hasKey   bool
}

// NewAIChatHandler creates an ai-chat handler. hasKey reports whether a
// provider API key is configured; without one every invocation fails
// with ConfigMissing.
func NewAIChatHandler(r *resolver.Resolver, llm *clients.LLMClient, hasKey bool) *AIChatHandler {
	return &AIChatHandler{
		resolver: r,
		llm:      llm,
		hasKey:   hasKey,
	}
}

// Handle implements Handler
func (h *AIChatHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	data := h.resolver.ResolveMap(node.Data, execContext)

	prompt, _ := data["prompt"].(string)
	systemPrompt, _ := data["systemPrompt"].(string)
	if prompt == "" && systemPrompt == "" {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: at least one of prompt, systemPrompt is required", node.ID))
	}

	if !h.hasKey {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: LLM provider API key not configured", node.ID))
	}

	model, _ := data["model"].(string)

	resp, err := h.llm.Complete(ctx, clients.ChatRequest{
		System: systemPrompt,
		Prompt: prompt,
		Model:  model,
	})
	if err != nil {
		var upstream *clients.UpstreamError
		if errors.As(err, &upstream) {
			return nil, NewHandlerError(UpstreamError,
				fmt.Sprintf("node %s: provider returned %d: %s", node.ID, upstream.Status, upstream.Body))
		}
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: %s", node.ID, err))
	}

	return map[string]any{
		"text":  resp.Text,
		"model": resp.Model,
		"usage": resp.Usage,
	}, nil
}
