package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const embeddingsInstrumentationName = "github.com/bidscoutlabs/matchd/internal/embeddings"

// Metrics holds embedding-related metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	duration  metric.Float64Histogram
	lookups   metric.Int64Counter
	fallbacks metric.Int64Counter
}

// NewMetrics creates a Metrics instance for embeddings.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(embeddingsInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"matchd.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of successful provider embedding calls, labeled by model."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.lookups, err = m.meter.Int64Counter(
		"matchd.embedding.lookups_total",
		metric.WithDescription("Embedding lookups by source: memo, provider, or pseudo."),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.logger.Warn("failed to create lookups counter", zap.Error(err))
	}

	m.fallbacks, err = m.meter.Int64Counter(
		"matchd.embedding.fallbacks_total",
		metric.WithDescription("Provider failures that degraded to the deterministic pseudo-vector."),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fallbacks counter", zap.Error(err))
	}
}

// RecordLookup counts one embedding lookup by source.
func (m *Metrics) RecordLookup(ctx context.Context, source string) {
	if m.lookups != nil {
		m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

// RecordGeneration records a successful provider call.
func (m *Metrics) RecordGeneration(ctx context.Context, model string, duration time.Duration) {
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("model", model)))
	}
}

// RecordFallback counts a degradation to the pseudo-vector.
func (m *Metrics) RecordFallback(ctx context.Context, model string) {
	if m.fallbacks != nil {
		m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
	}
}
