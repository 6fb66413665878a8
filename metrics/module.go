package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-monolith/mono"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Module serves the Prometheus scrape endpoint on its own listener so
// scrapes never contend with client traffic.
type Module struct {
	addr   string
	server *http.Server
}

var _ mono.Module = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates the metrics module listening on addr.
func NewModule(addr string) *Module {
	return &Module{addr: addr}
}

func (m *Module) Name() string {
	return "metrics"
}

// Start begins serving /metrics.
func (m *Module) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:              m.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	slog.Info("metrics server started", "addr", m.addr)
	return nil
}

// Stop shuts the scrape endpoint down.
func (m *Module) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.server != nil,
		Message: "operational",
		Details: map[string]any{"addr": m.addr},
	}
}
