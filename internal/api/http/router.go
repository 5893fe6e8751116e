package http

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumora/supportdesk/internal/api/http/handlers"
	"github.com/lumora/supportdesk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health   *handlers.HealthHandler
	Support  *handlers.SupportHandler
	Upload   *handlers.UploadHandler
	Storage  *handlers.StorageHandler
	Identity *auth.IdentityMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Local-backend storage endpoint. PUT is authorized by grant tokens,
	// not by user identity.
	if cfg.Storage != nil {
		app.Put("/storage/*", cfg.Storage.Put)
		app.Get("/storage/*", cfg.Storage.Get)
	}

	api := app.Group("/api", cfg.Identity.Handle)
	api.Get("/support", cfg.Support.Get)
	api.Get("/support/unread_count", cfg.Support.UnreadCount)
	api.Post("/support", cfg.Support.Post)
	api.Post("/upload", cfg.Upload.Relay)
	api.Get("/upload", cfg.Upload.Presign)
}
