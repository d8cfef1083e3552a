package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/cmd/engine/container"
	"github.com/flowgrid/flowgrid/cmd/engine/handlers"
)

// RegisterCredentialRoutes registers credential storage routes
func RegisterCredentialRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewCredentialHandler(c.Store, c.Crypto, c.Components.Logger)

	credentials := e.Group("/api/credentials")
	{
		credentials.GET("", h.ListCredentials)         // GET /api/credentials?type=...
		credentials.POST("", h.CreateCredential)       // POST /api/credentials
		credentials.GET("/:id", h.GetCredential)       // GET /api/credentials/{id}
		credentials.DELETE("/:id", h.DeleteCredential) // DELETE /api/credentials/{id}
	}
}
