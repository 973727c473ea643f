// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/shrtyhq/shrty/app/dto"
	"github.com/shrtyhq/shrty/app/handlers"
	"github.com/shrtyhq/shrty/app/middleware"
	businessflow "github.com/shrtyhq/shrty/business_flow"
	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/utils"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app         *fiber.App
	cfg         *config.Config
	linkHandler *handlers.LinkHandler
	authHandler *handlers.AuthHandler
	authFlow    businessflow.AuthFlow
	appLogger   *log.Logger
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.Config,
	linkHandler *handlers.LinkHandler,
	authHandler *handlers.AuthHandler,
	authFlow businessflow.AuthFlow,
	appLogger *log.Logger,
) Router {
	app := fiber.New(fiber.Config{
		AppName:      "Shrty API",
		ServerHeader: "Shrty",
		ErrorHandler: errorHandler,
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	return &FiberRouter{
		app:         app,
		cfg:         cfg,
		linkHandler: linkHandler,
		authHandler: authHandler,
		authFlow:    authFlow,
		appLogger:   appLogger,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		r.app.Get(r.cfg.Metrics.Path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)

	api.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: &dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	auth := api.Group("/auth")
	auth.Post("/login", r.authHandler.Login)
	auth.Post("/logout", r.authHandler.Logout)

	links := api.Group("/links", middleware.RequireSession(r.authFlow, r.cfg.Security, r.appLogger))
	links.Post("/", r.linkHandler.Create)
	links.Get("/", r.linkHandler.List)
	links.Delete("/:code", r.linkHandler.Retire)

	// Registered last so it does not shadow the API routes.
	r.app.Get("/:code", r.linkHandler.Redirect)

	r.app.Use(r.notFoundHandler)
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	r.app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	r.app.Use(logger.New(logger.Config{
		Format:     `{"time":"${time}","request_id":"${locals:requestid}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}"}` + "\n",
		TimeFormat: time.RFC3339,
		TimeZone:   "UTC",
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/api/v1/health"
		},
	}))

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			r.appLogger.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				c.Locals("requestid"),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

// healthCheck returns service liveness
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "healthy",
			"timestamp": utils.UTCNow().Format(time.RFC3339),
			"service":   "shrty",
		},
	})
}

// notFoundHandler handles unmatched routes
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "Resource not found",
		Error: &dto.ErrorDetail{
			Code: "NOT_FOUND",
		},
	})
}

// errorHandler is the global fiber error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"

	var fiberErr *fiber.Error
	if e, ok := err.(*fiber.Error); ok {
		fiberErr = e
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: &dto.ErrorDetail{
			Code: "HTTP_ERROR",
		},
	})
}

// generateRequestID creates a random request identifier
func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(bytes)
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	return r.app.Listen(address)
}

// GetApp returns the underlying fiber app
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}
