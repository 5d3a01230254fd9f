package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sciencefair-api/internal/config"
	"github.com/noah-isme/sciencefair-api/internal/handler"
	"github.com/noah-isme/sciencefair-api/internal/middleware"
	"github.com/noah-isme/sciencefair-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	FormHandler     *handler.FormHandler
	ProjectHandler  *handler.ProjectHandler
	ActivityHandler *handler.ActivityHandler
	HealthProbes    map[string]handler.HealthProbe
	JWTMiddleware   fiber.Handler
	// UploadRateLimit caps multipart uploads per user per minute; zero disables the limiter.
	UploadRateLimit int
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	v2 := app.Group("/api/v2", jwtMiddleware)

	if deps.FormHandler != nil {
		forms := v2.Group("/forms")
		if deps.UploadRateLimit > 0 {
			limiter := middleware.RateLimit("form-upload", deps.UploadRateLimit, time.Minute)
			forms.Post("", limiter)
			forms.Post("/:id/versions", limiter)
		}
		deps.FormHandler.Register(forms)
	}

	if deps.ProjectHandler != nil {
		deps.ProjectHandler.Register(v2.Group("/projects"))
	}

	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(v2.Group("/audit", middleware.RequireRole("admin")))
	}
}
