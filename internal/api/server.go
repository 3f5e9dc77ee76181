package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sonora-labs/sonora-go/internal/api/handlers"
	"github.com/sonora-labs/sonora-go/internal/api/middleware"
	"github.com/sonora-labs/sonora-go/internal/client"
	"github.com/sonora-labs/sonora-go/internal/core"
	"github.com/sonora-labs/sonora-go/internal/webhook"
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port      string
	Logger    *zap.SugaredLogger
	Metrics   core.Metrics
	Registry  *prometheus.Registry
	JWTSecret []byte
}

// Server is the admin/control daemon's HTTP surface: link lifecycle,
// protocol channel operations, webhooks and a dashboard, generalized
// from the teacher's session/message/webhook server.
type Server struct {
	app *fiber.App

	config ServerConfig

	linkManager       *client.Manager
	linkHandler       *handlers.LinkHandler
	channelHandler    *handlers.ChannelHandler
	controlHandler    *handlers.ControlHandler
	webhookHandler    *handlers.WebhookHandler
	webhookDispatcher *webhook.Dispatcher
	eventTail         *eventTail
}

// NewServer creates a new API server, including the link manager and
// webhook dispatcher it wires together.
func NewServer(config ServerConfig) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "Sonora Go",
		ServerHeader: "Sonora",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	webhookDispatcher := webhook.NewDispatcher(config.Logger)
	linkManager := client.NewManager(config.Logger, config.Metrics, webhookDispatcher)

	linkHandler := handlers.NewLinkHandler(linkManager, config.Logger)
	channelHandler := handlers.NewChannelHandler(linkManager, config.Logger)
	controlHandler := handlers.NewControlHandler(linkManager, config.Logger)
	webhookHandler := handlers.NewWebhookHandler(webhookDispatcher, config.Logger)
	tail := newEventTail(config.Logger, webhookDispatcher)

	server := &Server{
		app:               app,
		config:            config,
		linkManager:       linkManager,
		linkHandler:       linkHandler,
		channelHandler:    channelHandler,
		controlHandler:    controlHandler,
		webhookHandler:    webhookHandler,
		webhookDispatcher: webhookDispatcher,
		eventTail:         tail,
	}

	server.setupRoutes()

	return server
}

// LinkManager returns the manager backing this server, so the caller
// can drive a graceful shutdown of every link.
func (s *Server) LinkManager() *client.Manager {
	return s.linkManager
}

// GetWebhookDispatcher returns the webhook dispatcher for event dispatch.
func (s *Server) GetWebhookDispatcher() *webhook.Dispatcher {
	return s.webhookDispatcher
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthHandler)

	if s.config.Registry != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.config.Registry, promhttp.HandlerOpts{})))
	}

	s.app.Get("/", func(c *fiber.Ctx) error {
		return c.Redirect("/dashboard")
	})
	s.app.Static("/dashboard", "./public")

	api := s.app.Group("/api/v1", middleware.JWTAuth(s.config.JWTSecret))

	links := api.Group("/links")
	links.Post("/", s.linkHandler.Create)
	links.Get("/", s.linkHandler.List)
	links.Get("/:id", s.linkHandler.Get)
	links.Delete("/:id", s.linkHandler.Delete)

	ops := links.Group("/:id")
	ops.Post("/search", s.channelHandler.Search)
	ops.Post("/image", s.channelHandler.Image)
	ops.Post("/browse", s.channelHandler.Browse)
	ops.Post("/ad", s.channelHandler.RequestAd)
	ops.Post("/key", s.channelHandler.ReqKey)
	ops.Post("/substream", s.channelHandler.GetSubstream)
	ops.Get("/playlist/:playlistId", s.channelHandler.GetPlaylist)
	ops.Post("/playlist", s.channelHandler.ChangePlaylist)
	ops.Post("/cache-hash", s.controlHandler.CacheHash)
	ops.Post("/token-notify", s.controlHandler.TokenNotify)
	ops.Post("/request-play", s.controlHandler.RequestPlay)
	ops.Post("/pong", s.controlHandler.Pong)

	webhooks := api.Group("/webhooks")
	webhooks.Get("/", s.webhookHandler.List)
	webhooks.Post("/", s.webhookHandler.Create)
	webhooks.Delete("/:id", s.webhookHandler.Delete)
	webhooks.Post("/:id/test", s.webhookHandler.Test)
	webhooks.Get("/events", s.webhookHandler.AvailableEvents)

	api.Get("/openapi.json", s.openAPISpec)
}

// EventTailHandler returns the raw net/http handler for the live event
// feed. nhooyr.io/websocket needs a genuine http.ResponseWriter to
// hijack the connection, which fiber's fasthttp bridge cannot supply —
// so the caller mounts this on its own net/http listener instead of
// routing it through the fiber app (see cmd/sonorad).
func (s *Server) EventTailHandler() http.HandlerFunc {
	return s.eventTail.handler
}

// healthHandler handles health check requests.
func (s *Server) healthHandler(c *fiber.Ctx) error {
	stats := s.linkManager.Stats()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": "1.0.0",
		"links":   stats,
	})
}

func (s *Server) openAPISpec(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"openapi": "3.0.0",
		"info": fiber.Map{
			"title":   "Sonora Go API",
			"version": "1.0.0",
		},
	})
}

// Start starts the server.
func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprintf(":%s", s.config.Port))
}

// Stop stops the server.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
