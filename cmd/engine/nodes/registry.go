package nodes

import (
	"context"

	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// Handler executes one node kind. execContext maps node id to the
// output of an earlier successful node; the return value becomes
// execContext[node.ID] on success.
type Handler interface {
	Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error)
}

// Registry dispatches nodes to their handlers with a permissive
// fallback for unknown kinds.
type Registry struct {
	handlers map[string]Handler
	fallback Handler
	log      *logger.Logger
}

// NewRegistry creates an empty registry with the default fallback
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		fallback: NewFallbackHandler(log),
		log:      log,
	}
}

// Register binds a handler to a node kind
func (r *Registry) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Handle dispatches a node to its handler
func (r *Registry) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	if h, ok := r.handlers[node.Type]; ok {
		return h.Handle(ctx, node, execContext)
	}
	return r.fallback.Handle(ctx, node, execContext)
}
