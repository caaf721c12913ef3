package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("eventbus")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartPostSpan starts a span covering one Post call.
	StartPostSpan(ctx context.Context, eventType string) (context.Context, trace.Span)

	// StartDeliverySpan starts a span for one handler invocation.
	// Synchronous deliveries are children of the post span.
	StartDeliverySpan(ctx context.Context, handlerKey, mode string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

func (m *otelSpanManager) StartPostSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return StartPostSpan(ctx, eventType)
}

func (m *otelSpanManager) StartDeliverySpan(ctx context.Context, handlerKey, mode string) (context.Context, trace.Span) {
	return StartDeliverySpan(ctx, handlerKey, mode)
}

func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	AddSpanEvent(ctx, name, attrs...)
}

// StartPostSpan starts a span for a Post call.
// Uses the global OTel tracer.
func StartPostSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.post",
		trace.WithAttributes(
			attribute.String("event.type", eventType),
		),
		trace.WithSpanKind(trace.SpanKindProducer),
	)
}

// StartDeliverySpan starts a span for a handler invocation.
// Uses the global OTel tracer.
func StartDeliverySpan(ctx context.Context, handlerKey, mode string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "eventbus.deliver",
		trace.WithAttributes(
			attribute.String("handler.key", handlerKey),
			attribute.String("handler.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
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
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
