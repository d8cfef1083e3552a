package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/cmd/engine/container"
	"github.com/flowgrid/flowgrid/cmd/engine/handlers"
)

// RegisterWorkflowRoutes registers workflow CRUD and execution routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c.Store, c.Components.Queue, c.Components.Logger)

	workflows := e.Group("/api/workflows")
	{
		workflows.GET("", h.ListWorkflows)            // GET /api/workflows
		workflows.POST("", h.CreateWorkflow)          // POST /api/workflows
		workflows.GET("/:id", h.GetWorkflow)          // GET /api/workflows/{id}
		workflows.PUT("/:id", h.UpdateWorkflow)       // PUT /api/workflows/{id}
		workflows.PATCH("/:id", h.PatchWorkflow)      // PATCH /api/workflows/{id}
		workflows.DELETE("/:id", h.DeleteWorkflow)    // DELETE /api/workflows/{id}
		workflows.POST("/:id/execute", h.ExecuteWorkflow) // POST /api/workflows/{id}/execute
	}
}
