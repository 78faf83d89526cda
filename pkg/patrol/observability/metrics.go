package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records patrolkit metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSyncAttempt records a single record's sync attempt with its
	// duration and error status.
	RecordSyncAttempt(ctx context.Context, kind string, duration time.Duration, err error)

	// RecordSyncBatch records a completed sync pass.
	RecordSyncBatch(ctx context.Context, success bool, duration time.Duration, total int)

	// RecordProximityTransition records a geofence enter or exit.
	RecordProximityTransition(ctx context.Context, entered bool)

	// RecordVerification records a checkpoint verification.
	RecordVerification(ctx context.Context)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	syncAttempts  metric.Int64Counter
	syncLatency   metric.Float64Histogram
	syncErrors    metric.Int64Counter
	syncBatches   metric.Int64Counter
	batchLatency  metric.Float64Histogram
	transitions   metric.Int64Counter
	verifications metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("patrolkit")

	syncAttempts, err := meter.Int64Counter("patrolkit.sync.attempts",
		metric.WithDescription("Number of per-record sync attempts"),
	)
	if err != nil {
		return nil, err
	}

	syncLatency, err := meter.Float64Histogram("patrolkit.sync.latency_ms",
		metric.WithDescription("Per-record sync latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	syncErrors, err := meter.Int64Counter("patrolkit.sync.errors",
		metric.WithDescription("Number of per-record sync failures"),
	)
	if err != nil {
		return nil, err
	}

	syncBatches, err := meter.Int64Counter("patrolkit.sync.batches",
		metric.WithDescription("Number of sync passes"),
	)
	if err != nil {
		return nil, err
	}

	batchLatency, err := meter.Float64Histogram("patrolkit.sync.batch_latency_ms",
		metric.WithDescription("Sync pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("patrolkit.geofence.transitions",
		metric.WithDescription("Number of proximity boundary crossings"),
	)
	if err != nil {
		return nil, err
	}

	verifications, err := meter.Int64Counter("patrolkit.patrol.verifications",
		metric.WithDescription("Number of checkpoint verifications"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		syncAttempts:  syncAttempts,
		syncLatency:   syncLatency,
		syncErrors:    syncErrors,
		syncBatches:   syncBatches,
		batchLatency:  batchLatency,
		transitions:   transitions,
		verifications: verifications,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSyncAttempt records a per-record sync attempt.
func (m *otelMetrics) RecordSyncAttempt(ctx context.Context, kind string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", kind),
	}

	m.syncAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.syncLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.syncErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordSyncBatch records a completed sync pass.
func (m *otelMetrics) RecordSyncBatch(ctx context.Context, success bool, duration time.Duration, total int) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Int("total", total),
	}
	m.syncBatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.batchLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordProximityTransition records a geofence boundary crossing.
func (m *otelMetrics) RecordProximityTransition(ctx context.Context, entered bool) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("entered", entered),
	))
}

// RecordVerification records a checkpoint verification.
func (m *otelMetrics) RecordVerification(ctx context.Context) {
	m.verifications.Add(ctx, 1)
}
