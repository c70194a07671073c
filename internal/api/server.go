package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pgsentry/internal/auth"
	"pgsentry/internal/config"
)

// Server represents the HTTP server with all configured routes and middleware.
type Server struct {
	app    *fiber.App
	config *config.ServerConfig
	logger *slog.Logger

	auth          *auth.Authenticator
	healthHandler *HealthHandler
	targetHandler *TargetHandler
	actionHandler *ActionHandler
	viewHandler   *ViewHandler
	alertHandler  *AlertHandler
}

// ServerDeps contains all dependencies required to create a new Server.
type ServerDeps struct {
	Config        *config.ServerConfig
	Logger        *slog.Logger
	Auth          *auth.Authenticator
	HealthHandler *HealthHandler
	TargetHandler *TargetHandler
	ActionHandler *ActionHandler
	ViewHandler   *ViewHandler
	AlertHandler  *AlertHandler

	// DisableAccessLog turns off the request logger middleware.
	DisableAccessLog bool
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps ServerDeps) *Server {
	s := &Server{
		config:        deps.Config,
		logger:        deps.Logger,
		auth:          deps.Auth,
		healthHandler: deps.HealthHandler,
		targetHandler: deps.TargetHandler,
		actionHandler: deps.ActionHandler,
		viewHandler:   deps.ViewHandler,
		alertHandler:  deps.AlertHandler,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		CaseSensitive:         true,
		ReadTimeout:           deps.Config.ReadTimeout,
		WriteTimeout:          deps.Config.WriteTimeout,
		IdleTimeout:           deps.Config.IdleTimeout,
		ErrorHandler:          s.errorHandler,
	})

	s.registerMiddleware(!deps.DisableAccessLog)
	s.registerRoutes()

	return s
}

// registerMiddleware sets up all middleware for the server.
func (s *Server) registerMiddleware(accessLog bool) {
	s.app.Use(recover.New())
	s.app.Use(requestid.New())

	if accessLog {
		s.app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} | ${path} | ${locals:requestid} | ${error}\n",
			TimeFormat: "2006-01-02 15:04:05",
		}))
	}
}

// registerRoutes sets up all API routes. Everything except health and
// metrics requires a bearer token; the alert pipeline is restricted to the
// alerting bot.
func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.healthHandler.Check)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	authed := s.app.Group("", s.auth.Middleware())

	authed.Get("/targets/", s.targetHandler.List)

	authed.Get("/actions/", s.actionHandler.List)
	authed.Post("/actions/execute/:alias", s.actionHandler.Execute)
	authed.Get("/actions/:alias", s.actionHandler.Get)

	authed.Get("/views/", s.viewHandler.List)
	authed.Get("/views/execute/:alias", s.viewHandler.Execute)
	authed.Get("/views/:alias", s.viewHandler.Get)

	authed.Get("/alerts/by-id/:id", s.alertHandler.Get)

	bot := authed.Group("/alerts", auth.RequireService())
	bot.Post("/alertmanager-callback", s.alertHandler.Callback)
	bot.Get("/delivery", s.alertHandler.CheckDelivery)
	bot.Post("/finish", s.alertHandler.Finish)
}

// App returns the underlying fiber app, for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.logger.Info("starting HTTP server", "address", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler maps errors returned from handlers and middleware to
// responses. Unknown errors are logged and reported without detail.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	status, code, ok := statusFor(err)
	if !ok {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", c.Locals(requestid.ConfigDefault.ContextKey),
			"error", err,
		)
		return InternalError(c)
	}
	if code == ErrCodeInternalError {
		return Error(c, status, code, "internal server error")
	}
	return Error(c, status, code, err.Error())
}
