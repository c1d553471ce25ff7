package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	activeMetrics Metrics = noopMetrics{}
	metricsMu     sync.RWMutex
)

// Metrics records the pipeline's operational counters.
type Metrics interface {
	RecordSearch(ctx context.Context, provider string, duration time.Duration, documents int, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordSession(ctx context.Context, status string)
}

// SetActive installs the process-wide recorder.
func SetActive(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if m == nil {
		m = noopMetrics{}
	}
	activeMetrics = m
}

// Active returns the process-wide recorder, a noop until Initialize
// enabled metrics.
func Active() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return activeMetrics
}

type noopMetrics struct{}

func (noopMetrics) RecordSearch(context.Context, string, time.Duration, int, error) {}
func (noopMetrics) RecordLLMCall(context.Context, string, time.Duration, int, int, error) {}
func (noopMetrics) RecordSession(context.Context, string) {}

// PrometheusMetrics exposes the counters on the default Prometheus
// registry via the OpenTelemetry bridge.
type PrometheusMetrics struct {
	searchDuration metric.Float64Histogram
	searchesTotal  metric.Int64Counter
	searchErrors   metric.Int64Counter
	documentsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrors       metric.Int64Counter

	sessionsTotal metric.Int64Counter
}

func initMetrics() (*PrometheusMetrics, error) {
	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meter := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	).Meter("dossier")

	m := &PrometheusMetrics{}

	if m.searchDuration, err = meter.Float64Histogram(
		"dossier_provider_call_duration_seconds",
		metric.WithDescription("Search provider call duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.searchesTotal, err = meter.Int64Counter(
		"dossier_searches_total",
		metric.WithDescription("Total search provider calls"),
	); err != nil {
		return nil, err
	}
	if m.searchErrors, err = meter.Int64Counter(
		"dossier_search_errors_total",
		metric.WithDescription("Total failed search provider calls"),
	); err != nil {
		return nil, err
	}
	if m.documentsTotal, err = meter.Int64Counter(
		"dossier_documents_total",
		metric.WithDescription("Total documents retrieved"),
	); err != nil {
		return nil, err
	}
	if m.llmDuration, err = meter.Float64Histogram(
		"dossier_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	); err != nil {
		return nil, err
	}
	if m.llmInputTokens, err = meter.Int64Counter(
		"dossier_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	); err != nil {
		return nil, err
	}
	if m.llmOutputTokens, err = meter.Int64Counter(
		"dossier_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	); err != nil {
		return nil, err
	}
	if m.llmErrors, err = meter.Int64Counter(
		"dossier_llm_errors_total",
		metric.WithDescription("Total failed LLM calls"),
	); err != nil {
		return nil, err
	}
	if m.sessionsTotal, err = meter.Int64Counter(
		"dossier_sessions_total",
		metric.WithDescription("Total report sessions by terminal status"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, provider string, duration time.Duration, documents int, err error) {
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	m.searchDuration.Record(ctx, duration.Seconds(), attrs)
	m.searchesTotal.Add(ctx, 1, attrs)
	m.documentsTotal.Add(ctx, int64(documents), attrs)
	if err != nil {
		m.searchErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model))
	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrors.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordSession(ctx context.Context, status string) {
	m.sessionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = noopMetrics{}
)
