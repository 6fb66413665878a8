package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	domain "github.com/example/chat-relay/domain/chat"
	"github.com/example/chat-relay/events"
)

// historyCacheTTL bounds staleness if an invalidation is ever missed.
const historyCacheTTL = 5 * time.Minute

// Module owns durable chat data and emits events when server-side
// writes land, so the relay can fan them out.
type Module struct {
	db       *gorm.DB
	rdb      *redis.Client
	eventBus mono.EventBus
	service  *Service
}

// Compile-time interface checks.
var (
	_ mono.Module              = (*Module)(nil)
	_ mono.EventBusAwareModule = (*Module)(nil)
	_ mono.EventEmitterModule  = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module. rdb may be nil to run without
// the history cache.
func NewModule(db *gorm.DB, rdb *redis.Client) *Module {
	return &Module{db: db, rdb: rdb}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.MessageSentV1.ToBase(),
		events.RoomCreatedV1.ToBase(),
	}
}

// Start migrates the schema, seeds the default room, and wires event
// publication into the service.
func (m *Module) Start(ctx context.Context) error {
	repo := NewRepository(m.db)
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}

	m.service = NewService(repo, newHistoryCache(m.rdb, historyCacheTTL), m)

	// A fresh database gets a lobby so the first client has somewhere
	// to land.
	if _, err := repo.FindRoom("lobby"); err != nil {
		now := time.Now()
		lobby := &domain.Room{
			ID:        "lobby",
			Name:      "General Lobby",
			Type:      domain.RoomPublic,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.CreateRoom(lobby); err != nil {
			return fmt.Errorf("failed to seed lobby room: %w", err)
		}
	}

	slog.Info("chat module started")
	return nil
}

// Stop shuts the module down. Database and redis handles are owned by
// main.
func (m *Module) Stop(_ context.Context) error {
	slog.Info("chat module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database handle: %v", err)}
	}
	if err := sqlDB.Ping(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping: %v", err)}
	}
	details := map[string]any{"history_cache": m.rdb != nil}
	if m.rdb != nil {
		if err := m.rdb.Ping(ctx).Err(); err != nil {
			details["history_cache_error"] = err.Error()
		}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational", Details: details}
}

// Service returns the chat service for the gateway to use.
func (m *Module) Service() *Service {
	return m.service
}

// MessageSent publishes a MessageSent event to the bus.
func (m *Module) MessageSent(msg domain.Message) {
	if err := events.MessageSentV1.Publish(m.eventBus, events.MessageSentEvent{Message: msg}, nil); err != nil {
		slog.Warn("failed to publish MessageSent event", "error", err)
	}
}

// RoomCreated publishes a RoomCreated event to the bus.
func (m *Module) RoomCreated(room domain.Room) {
	if err := events.RoomCreatedV1.Publish(m.eventBus, events.RoomCreatedEvent{Room: room}, nil); err != nil {
		slog.Warn("failed to publish RoomCreated event", "error", err)
	}
}
