package assistant

import (
	"context"
	"log/slog"

	"github.com/go-monolith/mono"
)

// Module wraps the completion client for the application.
type Module struct {
	cfg    Config
	client *Client
}

var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new assistant module.
func NewModule(cfg Config) *Module {
	return &Module{cfg: cfg}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "assistant"
}

// Start builds the client.
func (m *Module) Start(_ context.Context) error {
	m.client = NewClient(m.cfg)
	if m.cfg.APIKey == "" {
		slog.Warn("assistant API key not configured; AI chat requests will fail")
	}
	slog.Info("assistant module started", "model", m.cfg.Model)
	return nil
}

// Stop shuts the module down.
func (m *Module) Stop(_ context.Context) error {
	slog.Info("assistant module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"model":      m.cfg.Model,
			"configured": m.cfg.APIKey != "",
		},
	}
}

// Client returns the completion client for the gateway to use.
func (m *Module) Client() *Client {
	return m.client
}
