// Package router wires the HTTP handlers into a fiber application.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/handlers"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/metrics"
	"github.com/soltixdb/ledgercast/internal/middleware"
	"github.com/soltixdb/ledgercast/internal/services"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, service *services.ForecastService, m *metrics.Metrics, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, service)

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger, logging.DefaultMiddlewareConfig()))

	app.Get("/health", h.Health)
	if cfg.Metrics.Enabled && m != nil {
		app.Get(cfg.Metrics.Path, adaptor.HTTPHandler(m.Handler()))
	}

	v1 := app.Group("/v1")

	// Historical data
	v1.Get("/history/:source", h.GetHistory)

	// Forecast sessions
	v1.Post("/sessions", h.CreateSession)
	v1.Get("/sessions", h.ListSessions)
	v1.Get("/sessions/:id", h.GetSession)
	v1.Delete("/sessions/:id", h.DeleteSession)
	v1.Post("/sessions/:id/rerun", h.RerunSession)
	v1.Post("/sessions/:id/scenarios", h.AddScenarios)
	v1.Get("/sessions/:id/results", h.GetResults)
	v1.Get("/sessions/:id/best", h.BestScenario)
	v1.Get("/sessions/:id/accuracy", h.AccuracySummary)

	admin := app.Group("/admin")
	admin.Post("/cache/refresh", h.RefreshCache)
	admin.Delete("/cache/:source", h.InvalidateCache)

	// 404 handler
	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, service *services.ForecastService, m *metrics.Metrics, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Ledgercast Forecaster",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	Setup(app, logger, service, m, cfg)

	return app
}
