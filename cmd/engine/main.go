package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/flowgrid/flowgrid/cmd/engine/container"
	"github.com/flowgrid/flowgrid/cmd/engine/routes"
	"github.com/flowgrid/flowgrid/common/bootstrap"
	"github.com/flowgrid/flowgrid/common/repository"
	"github.com/flowgrid/flowgrid/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, queue, cache, Redis)
	components, err := bootstrap.Setup(ctx, "engine",
		bootstrap.WithDBInitHook(repository.InitSchema),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap engine: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Start consuming run requests before accepting traffic
	if err := serviceContainer.Consumer.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start run consumer: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, components)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ctx echo.Context) error {
		if err := c.Components.Health(ctx.Request().Context()); err != nil {
			return ctx.JSON(503, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return ctx.JSON(200, map[string]string{
			"status":  "ok",
			"service": "engine",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterWorkflowRoutes(e, serviceContainer)
	routes.RegisterExecutionRoutes(e, serviceContainer)
	routes.RegisterCredentialRoutes(e, serviceContainer)
	routes.RegisterOAuthRoutes(e, serviceContainer)
}

// startServer runs the HTTP server until a shutdown signal arrives
func startServer(e *echo.Echo, components *bootstrap.Components) {
	srv := server.New("engine", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
