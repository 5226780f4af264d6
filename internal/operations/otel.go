package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"tabtweak/internal/infrastructure"
)

// TracerName names the operations tracer
const TracerName = "tabtweak.operations"

// OperationTracer instruments operation and step execution. A nil metrics
// set records spans only.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.TweakMetrics
}

// NewOperationTracer creates a tracer bound to the global provider
func NewOperationTracer(metrics *infrastructure.TweakMetrics) *OperationTracer {
	return &OperationTracer{tracer: otel.Tracer(TracerName), metrics: metrics}
}

// TraceOperation starts the span covering a whole operation
func (t *OperationTracer) TraceOperation(ctx context.Context, operationID, dataset string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("dataset", dataset),
		),
	)
	if t.metrics != nil {
		t.metrics.OperationsActive.Add(ctx, 1, metric.WithAttributes(attribute.String("dataset", dataset)))
	}
	return ctx, span
}

// EndOperation closes the operation span and records its outcome
func (t *OperationTracer) EndOperation(ctx context.Context, span trace.Span, dataset string, duration time.Duration, err error) {
	defer span.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	if t.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("dataset", dataset), infrastructure.StatusAttr(err))
	t.metrics.OperationsActive.Add(ctx, -1, metric.WithAttributes(attribute.String("dataset", dataset)))
	t.metrics.OperationsTotal.Add(ctx, 1, attrs)
	t.metrics.OperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// TraceStep starts a child span for one step attempt
func (t *OperationTracer) TraceStep(ctx context.Context, operationID, stepID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.step."+stepID,
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
			attribute.Int("step.attempt", attempt),
		),
	)
}

// EndStep closes a step span
func (t *OperationTracer) EndStep(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
