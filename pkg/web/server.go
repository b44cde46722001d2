package web

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp wires the API routes.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())
	app.Get("/health", handlers.HealthCheck)

	app.Get("/flows/:flowId/versions/:versionId", handlers.GetFlowVersion)
	app.Put("/flows/:flowId/versions/:versionId", handlers.SaveFlowVersion)
	app.Post("/flows/:flowId/versions/:versionId/trigger", handlers.TriggerFlowVersion)

	app.Get("/sessions/:sessionId/tasks", handlers.GetSession)
	app.Get("/tasks/:taskId", handlers.GetTask)
	app.Get("/plugins", handlers.GetPlugins)

	return app
}

type Server struct {
	logger *slog.Logger
	app    *fiber.App
}

func NewServer(logger *slog.Logger, handlers *APIHandlers) *Server {
	return &Server{
		logger: logger.With("module", "api"),
		app:    NewApp(handlers),
	}
}

// Start blocks serving on port until Shutdown is called.
func (s *Server) Start(port int) error {
	s.logger.Info("Starting API server", "port", port)

	return s.app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
