package nodes

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/common/logger"
	"github.com/flowgrid/flowgrid/common/models"
)

// DatabaseHandler executes database nodes. Each invocation opens a
// fresh connection scoped to the query, so no server-side state leaks
// between nodes or executions.
type DatabaseHandler struct {
	resolver *resolver.Resolver
	log      *logger.Logger
}

// NewDatabaseHandler creates a database handler
func NewDatabaseHandler(r *resolver.Resolver, log *logger.Logger) *DatabaseHandler {
	return &DatabaseHandler{resolver: r, log: log}
}

// Handle implements Handler
func (h *DatabaseHandler) Handle(ctx context.Context, node models.Node, execContext map[string]any) (any, error) {
	data := h.resolver.ResolveMap(node.Data, execContext)

	connString, _ := data["connectionString"].(string)
	query, _ := data["query"].(string)
	if connString == "" || query == "" {
		return nil, NewHandlerError(ConfigMissing,
			fmt.Sprintf("node %s: connectionString and query are required", node.ID))
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: connect: %s", node.ID, err))
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: query: %s", node.ID, err))
	}
	defer rows.Close()

	descriptions := rows.FieldDescriptions()
	fields := make([]any, len(descriptions))
	for i, fd := range descriptions {
		fields[i] = fd.Name
	}

	results := make([]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: scan: %s", node.ID, err))
		}
		row := make(map[string]any, len(descriptions))
		for i, fd := range descriptions {
			row[fd.Name] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, NewHandlerError(NodeIOError, fmt.Sprintf("node %s: rows: %s", node.ID, err))
	}

	return map[string]any{
		"rows":     results,
		"rowCount": len(results),
		"fields":   fields,
	}, nil
}
