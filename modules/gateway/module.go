package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/chat-relay/config"
	"github.com/example/chat-relay/modules/assistant"
	"github.com/example/chat-relay/modules/auth"
	"github.com/example/chat-relay/modules/chat"
	"github.com/example/chat-relay/modules/relay"
)

// Module is the Fiber HTTP/WebSocket server. It is the only module
// clients talk to directly; everything it does is delegated to the
// relay, chat, auth, and assistant modules.
type Module struct {
	cfg       *config.AppConfig
	app       *fiber.App
	handlers  *Handlers
	relayMod  *relay.Module
	chatMod   *chat.Module
	authMod   *auth.Module
	assistMod *assistant.Module
}

var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the gateway module. It must be registered after the
// modules it depends on so their services exist when Start runs.
func NewModule(cfg *config.AppConfig, relayMod *relay.Module, chatMod *chat.Module, authMod *auth.Module, assistMod *assistant.Module) *Module {
	return &Module{
		cfg:       cfg,
		relayMod:  relayMod,
		chatMod:   chatMod,
		authMod:   authMod,
		assistMod: assistMod,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "gateway"
}

// Start initializes and starts the HTTP/WebSocket server.
func (m *Module) Start(ctx context.Context) error {
	m.app = fiber.New(fiber.Config{
		AppName:               "chat-relay",
		DisableStartupMessage: true,
		ErrorHandler:          m.errorHandler,
	})

	m.app.Use(recover.New())
	m.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} ${method} ${path} ${latency}\n",
		Next: func(c *fiber.Ctx) bool {
			// Upgrade requests are long-lived; log them from the handler.
			return websocket.IsWebSocketUpgrade(c)
		},
	}))
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.handlers = NewHandlers(
		m.relayMod.Router(),
		m.chatMod.Service(),
		m.authMod.Service(),
		m.assistMod.Client(),
	)
	m.registerRoutes()

	addr := fmt.Sprintf(":%d", m.cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	slog.Info("gateway started", "addr", addr)
	return nil
}

// Stop gracefully shuts down the server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app != nil {
		if err := m.app.ShutdownWithContext(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}
	slog.Info("gateway stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port": m.cfg.Server.Port,
		},
	}
}

// registerRoutes sets up all HTTP and WebSocket routes.
func (m *Module) registerRoutes() {
	m.app.Get("/health", m.handlers.HealthCheck)

	// WebSocket upgrade middleware
	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handlers.HandleWebSocket))

	api := m.app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", m.handlers.Register)
	authGroup.Post("/login", m.handlers.Login)
	authGroup.Post("/refresh", m.handlers.Refresh)

	protected := api.Group("", m.handlers.RequireAuth)
	protected.Get("/rooms", m.handlers.ListRooms)
	protected.Post("/rooms", m.handlers.CreateRoom)
	protected.Get("/rooms/:id", m.handlers.GetRoom)
	protected.Post("/rooms/:id/join", m.handlers.JoinRoom)
	protected.Get("/rooms/:id/members", m.handlers.ListMembers)
	protected.Get("/rooms/:id/messages", m.handlers.GetMessages)
	protected.Post("/rooms/:id/messages", m.handlers.PostMessage)
	protected.Post("/ai/chat", m.handlers.AIChat)
}

// errorHandler handles errors globally.
func (m *Module) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("HTTP error", "code", code, "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(ErrorResponse{Error: message})
}
