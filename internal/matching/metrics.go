package matching

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const matchingInstrumentationName = "github.com/bidscoutlabs/matchd/internal/matching"

// Metrics holds matching loop instruments.
type Metrics struct {
	meter  metric.Meter
	logger *zap.Logger

	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	candidates    metric.Int64Counter
	alertsCreated metric.Int64Counter
	skipped       metric.Int64Counter
}

// NewMetrics creates matching metrics.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(matchingInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.cycles, err = m.meter.Int64Counter(
		"matchd.matching.cycles_total",
		metric.WithDescription("Completed matching cycles."),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cycles counter", zap.Error(err))
	}

	m.cycleDuration, err = m.meter.Float64Histogram(
		"matchd.matching.cycle_duration_seconds",
		metric.WithDescription("Wall time of one matching cycle."),
		metric.WithUnit("s"),
	)
	if err != nil {
		m.logger.Warn("failed to create cycle duration histogram", zap.Error(err))
	}

	m.candidates, err = m.meter.Int64Counter(
		"matchd.matching.candidates_total",
		metric.WithDescription("Corpus candidates considered across cycles."),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		m.logger.Warn("failed to create candidates counter", zap.Error(err))
	}

	m.alertsCreated, err = m.meter.Int64Counter(
		"matchd.matching.alerts_created_total",
		metric.WithDescription("Alerts created by matching cycles."),
		metric.WithUnit("{alert}"),
	)
	if err != nil {
		m.logger.Warn("failed to create alerts counter", zap.Error(err))
	}

	m.skipped, err = m.meter.Int64Counter(
		"matchd.matching.candidates_skipped_total",
		metric.WithDescription("Corpus candidates skipped because they could not be decoded."),
		metric.WithUnit("{opportunity}"),
	)
	if err != nil {
		m.logger.Warn("failed to create skip counter", zap.Error(err))
	}
}

// RecordCycle records one completed cycle.
func (m *Metrics) RecordCycle(ctx context.Context, elapsed time.Duration, candidates, created int) {
	if m.cycles != nil {
		m.cycles.Add(ctx, 1)
	}
	if m.cycleDuration != nil {
		m.cycleDuration.Record(ctx, elapsed.Seconds())
	}
	if m.candidates != nil {
		m.candidates.Add(ctx, int64(candidates))
	}
	if m.alertsCreated != nil && created > 0 {
		m.alertsCreated.Add(ctx, int64(created))
	}
}

// RecordSkip counts a candidate dropped as undecodable.
func (m *Metrics) RecordSkip(ctx context.Context) {
	if m.skipped != nil {
		m.skipped.Add(ctx, 1)
	}
}
