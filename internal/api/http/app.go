package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/SP23-BSE-106/grain/internal/observability"
)

// AppConfig bundles everything needed to assemble the fiber app.
type AppConfig struct {
	Name        string
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Middlewares MiddlewareConfig
	Routes      RouteConfig
}

// NewApp assembles the middleware chain and routes.
func NewApp(cfg AppConfig) *fiber.App {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Routes.Metrics == nil && cfg.Metrics != nil {
		cfg.Routes.Metrics = cfg.Metrics.Handler()
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.Name,
		DisableStartupMessage: true,
		// Values from the request outlive it in the stores, logs and metric labels.
		Immutable:             true,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		IdleTimeout:           60 * time.Second,
	})
	RegisterMiddlewares(app, logger, cfg.Metrics, cfg.Middlewares)
	RegisterRoutes(app, cfg.Routes)
	return app
}
