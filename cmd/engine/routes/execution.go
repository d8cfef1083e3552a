package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/cmd/engine/container"
	"github.com/flowgrid/flowgrid/cmd/engine/handlers"
)

// RegisterExecutionRoutes registers execution read and streaming routes
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewExecutionHandler(c.Store, c.Bus, c.Components.Logger)

	executions := e.Group("/api/executions")
	{
		executions.GET("", h.ListExecutions)           // GET /api/executions?workflowId=N
		executions.GET("/:id", h.GetExecution)         // GET /api/executions/{id}
		executions.GET("/:id/stream", h.StreamExecution) // GET /api/executions/{id}/stream (SSE)
	}
}
