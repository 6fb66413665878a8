package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	"github.com/example/chat-relay/events"
)

// Module wires the Router into the application: it consumes chat events
// from the bus and fans them out to connected clients. The Router
// itself stays transport- and bus-agnostic.
type Module struct {
	router *Router
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the relay module and its Router.
func NewModule() *Module {
	return &Module{router: NewRouter()}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "relay"
}

// Router returns the fan-out router for the gateway to use.
func (m *Module) Router() *Router {
	return m.router
}

// Start brings the module up. The router needs no background loop;
// state lives in its maps and every operation runs on the caller's
// goroutine.
func (m *Module) Start(_ context.Context) error {
	slog.Info("relay module started")
	return nil
}

// Stop discards in-memory fan-out state. Connections are owned by the
// gateway, which closes them during its own shutdown.
func (m *Module) Stop(_ context.Context) error {
	slog.Info("relay module stopped", "connections", m.router.ConnectionCount())
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connections":  m.router.ConnectionCount(),
			"active_rooms": m.router.RoomCount(),
		},
	}
}

// RegisterEventConsumers subscribes to chat events that need fan-out.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.MessageSentV1, m.handleMessageSent, m,
	); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomCreatedV1, m.handleRoomCreated, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}
	slog.Info("relay registered event consumers", "events", "MessageSent, RoomCreated")
	return nil
}

// handleMessageSent relays a server-persisted message to its room. The
// message body is passed through verbatim; the relay never inspects it.
func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	m.router.BroadcastToRoom(event.Message.RoomID, "new-message", event.Message, "")
	return nil
}

// handleRoomCreated tells every client a new room exists.
func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.router.BroadcastGlobal("room-created", event.Room)
	return nil
}
