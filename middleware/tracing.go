package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ook-lab/docqueue/item"
)

// tracerName is the instrumentation scope name for docqueue tracing.
const tracerName = "github.com/ook-lab/docqueue"

// Tracing returns middleware that wraps item processing in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop tracer
// is used and this middleware becomes a pass-through with zero overhead.
//
// Span attributes include: docqueue.item.id, docqueue.item.kind,
// docqueue.workspace, docqueue.attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, w *item.WorkItem, next Handler) error {
		ctx, span := tracer.Start(ctx, "docqueue.item.process",
			trace.WithAttributes(
				attribute.String("docqueue.item.id", w.ID.String()),
				attribute.String("docqueue.item.kind", w.Kind),
				attribute.String("docqueue.workspace", w.Workspace),
				attribute.Int("docqueue.attempt", w.AttemptCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
