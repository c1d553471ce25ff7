package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/kadirpekel/dossier/pkg/config"
)

// Manager owns the tracer provider and the metrics recorder for one
// process.
type Manager struct {
	cfg            config.ObservabilityConfig
	tracerProvider trace.TracerProvider
	metrics        Metrics
}

// NewManager builds a manager; nothing starts until Initialize.
func NewManager(cfg config.ObservabilityConfig) *Manager {
	return &Manager{cfg: cfg, metrics: noopMetrics{}}
}

// Initialize starts the configured subsystems and installs the global
// recorder.
func (m *Manager) Initialize(ctx context.Context) error {
	tp, err := initTracer(ctx, m.cfg)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	if m.cfg.MetricsEnabled {
		pm, err := initMetrics()
		if err != nil {
			return err
		}
		m.metrics = pm
	}
	SetActive(m.metrics)
	return nil
}

// Metrics returns the recorder; a noop when metrics are disabled.
func (m *Manager) Metrics() Metrics {
	return m.metrics
}

// MetricsHandler serves the Prometheus scrape endpoint.
func (m *Manager) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes exporters and restores the noop recorder.
func (m *Manager) Shutdown(ctx context.Context) error {
	SetActive(nil)
	if sdkProvider, ok := m.tracerProvider.(*sdktrace.TracerProvider); ok {
		return sdkProvider.Shutdown(ctx)
	}
	return nil
}
