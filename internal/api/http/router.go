package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/SP23-BSE-106/grain/internal/api/http/handlers"
	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Auth    *handlers.AuthHandler
	Users   *handlers.UsersHandler
	Pages   *handlers.PagesHandler
	Guard   *auth.Guard
	Metrics nethttp.Handler
}

// RegisterRoutes installs the guard in front of every route and wires the
// auth surface.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.Guard.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.Signup)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/logout", cfg.Auth.Logout)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Post("/verify", cfg.Auth.Verify)
	authGroup.Get("/me", auth.RequireAuthenticated(), cfg.Auth.Me)

	users := api.Group("/users", auth.RequireRole(domain.RoleAdmin))
	users.Get("", cfg.Users.List)
	users.Patch("/:id/role", cfg.Users.ChangeRole)

	app.Get("/profile", auth.RequireAuthenticated(), cfg.Pages.Profile)
	app.Get("/admin", auth.RequireRole(domain.RoleAdmin), cfg.Pages.Admin)
}
