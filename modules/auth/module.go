package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-monolith/mono"
	"gorm.io/gorm"

	domain "github.com/example/chat-relay/domain/user"
)

// Module provides authentication services backed by the shared database.
type Module struct {
	db      *gorm.DB
	jwtCfg  JWTConfig
	service *Service
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new auth module.
func NewModule(db *gorm.DB, jwtCfg JWTConfig) *Module {
	return &Module{db: db, jwtCfg: jwtCfg}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// Start migrates the user schema and assembles the service.
func (m *Module) Start(_ context.Context) error {
	if err := m.db.AutoMigrate(&domain.User{}); err != nil {
		return fmt.Errorf("failed to migrate user schema: %w", err)
	}

	m.service = NewService(
		NewUserRepository(m.db),
		NewPasswordHasher(),
		NewJWTManager(m.jwtCfg),
	)

	slog.Info("auth module started")
	return nil
}

// Stop shuts down the module. The database handle is owned by main.
func (m *Module) Stop(_ context.Context) error {
	slog.Info("auth module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database handle: %v", err)}
	}
	if err := sqlDB.Ping(); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping: %v", err)}
	}
	return mono.HealthStatus{Healthy: true, Message: "operational"}
}

// Service returns the auth service for the gateway to use.
func (m *Module) Service() *Service {
	return m.service
}
