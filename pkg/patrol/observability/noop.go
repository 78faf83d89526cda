package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
// Use when metrics are disabled to avoid overhead.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordSyncAttempt does nothing.
func (NoopMetrics) RecordSyncAttempt(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordSyncBatch does nothing.
func (NoopMetrics) RecordSyncBatch(_ context.Context, _ bool, _ time.Duration, _ int) {}

// RecordProximityTransition does nothing.
func (NoopMetrics) RecordProximityTransition(_ context.Context, _ bool) {}

// RecordVerification does nothing.
func (NoopMetrics) RecordVerification(_ context.Context) {}

// NoopSpanManager is a SpanManager that does nothing.
// Use when tracing is disabled to avoid overhead.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is a span that does nothing.
// We use the OTel noop package for a proper no-op span implementation.
var noopSpan = noop.Span{}

// StartBatchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartBatchSpan(ctx context.Context, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartRecordSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRecordSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
