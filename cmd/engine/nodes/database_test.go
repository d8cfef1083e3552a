package nodes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgrid/flowgrid/cmd/engine/resolver"
	"github.com/flowgrid/flowgrid/common/models"
)

func TestDatabaseHandler_MissingQuery(t *testing.T) {
	h := NewDatabaseHandler(resolver.New(), testLogger())

	node := models.Node{ID: "D", Type: models.NodeTypeDatabase, Data: map[string]any{
		"connectionString": "postgres://localhost/x",
	}}
	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, ConfigMissing, handlerErr.Kind)
	assert.Contains(t, handlerErr.Message, "D")
}

func TestDatabaseHandler_BadConnectionString(t *testing.T) {
	h := NewDatabaseHandler(resolver.New(), testLogger())

	node := models.Node{ID: "D", Type: models.NodeTypeDatabase, Data: map[string]any{
		"connectionString": "not a connection string",
		"query":            "SELECT 1",
	}}
	_, err := h.Handle(context.Background(), node, map[string]any{})
	require.Error(t, err)

	var handlerErr *HandlerError
	require.ErrorAs(t, err, &handlerErr)
	assert.Equal(t, NodeIOError, handlerErr.Kind)
}
