package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the patrolkit tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("patrolkit")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartBatchSpan starts a span covering one sync pass.
	StartBatchSpan(ctx context.Context, queued int) (context.Context, trace.Span)

	// StartRecordSpan starts a span for a single record's sync attempt.
	// The record span should be a child of the batch span.
	StartRecordSpan(ctx context.Context, recordID, kind string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartBatchSpan starts a span covering one sync pass.
func (m *otelSpanManager) StartBatchSpan(ctx context.Context, queued int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "patrolkit.sync",
		trace.WithAttributes(
			attribute.Int("sync.queued", queued),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartRecordSpan starts a span for a single record's sync attempt.
func (m *otelSpanManager) StartRecordSpan(ctx context.Context, recordID, kind string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "patrolkit.sync.record",
		trace.WithAttributes(
			attribute.String("record.id", recordID),
			attribute.String("record.kind", kind),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
