package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/flowgrid/flowgrid/cmd/engine/container"
	"github.com/flowgrid/flowgrid/cmd/engine/handlers"
)

// RegisterOAuthRoutes registers the Gmail authorization-code flow routes
func RegisterOAuthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewOAuthHandler(
		c.Store,
		c.Crypto,
		c.OAuth,
		c.Components.Cache,
		c.Components.Config.OAuth,
		c.Components.Logger,
	)

	gmail := e.Group("/api/oauth/gmail")
	{
		gmail.POST("/auth-url", h.AuthURL) // POST /api/oauth/gmail/auth-url
		gmail.GET("/callback", h.Callback) // GET /api/oauth/gmail/callback?code=...&state=...
	}
}
