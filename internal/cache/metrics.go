package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const cacheInstrumentationName = "github.com/bidscoutlabs/matchd/internal/cache"

// Metrics holds cache operation counters, labeled by backend.
type Metrics struct {
	meter   metric.Meter
	logger  *zap.Logger
	backend attribute.KeyValue

	hits     metric.Int64Counter
	misses   metric.Int64Counter
	expiries metric.Int64Counter
	swept    metric.Int64Counter
}

// NewMetrics creates cache metrics for the named backend.
func NewMetrics(logger *zap.Logger, backend string) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:   otel.Meter(cacheInstrumentationName),
		logger:  logger,
		backend: attribute.String("backend", backend),
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.hits, err = m.meter.Int64Counter(
		"matchd.cache.hits_total",
		metric.WithDescription("Cache reads that returned a live entry."),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		m.logger.Warn("failed to create hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"matchd.cache.misses_total",
		metric.WithDescription("Cache reads that found nothing (including backend errors, which degrade to misses)."),
		metric.WithUnit("{read}"),
	)
	if err != nil {
		m.logger.Warn("failed to create misses counter", zap.Error(err))
	}

	m.expiries, err = m.meter.Int64Counter(
		"matchd.cache.lazy_expiries_total",
		metric.WithDescription("Entries found expired on read and removed."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create expiries counter", zap.Error(err))
	}

	m.swept, err = m.meter.Int64Counter(
		"matchd.cache.swept_total",
		metric.WithDescription("Entries removed by the periodic sweep."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create sweep counter", zap.Error(err))
	}
}

// RecordHit counts a successful read.
func (m *Metrics) RecordHit(ctx context.Context) {
	if m.hits != nil {
		m.hits.Add(ctx, 1, metric.WithAttributes(m.backend))
	}
}

// RecordMiss counts a read that found nothing.
func (m *Metrics) RecordMiss(ctx context.Context) {
	if m.misses != nil {
		m.misses.Add(ctx, 1, metric.WithAttributes(m.backend))
	}
}

// RecordExpiry counts a lazy expiry on read. Lazy expiries also count as
// misses from the caller's point of view.
func (m *Metrics) RecordExpiry(ctx context.Context) {
	if m.expiries != nil {
		m.expiries.Add(ctx, 1, metric.WithAttributes(m.backend))
	}
	m.RecordMiss(ctx)
}

// RecordSweep counts entries removed by the background sweep.
func (m *Metrics) RecordSweep(ctx context.Context, removed int) {
	if m.swept != nil {
		m.swept.Add(ctx, int64(removed), metric.WithAttributes(m.backend))
	}
}
