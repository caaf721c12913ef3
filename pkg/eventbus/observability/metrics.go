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

// MetricsRecorder records event bus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPost records one posted event and how many handlers received it.
	RecordPost(ctx context.Context, eventType string, deliveries int, duration time.Duration)

	// RecordDelivery records one handler invocation with its duration and error status.
	RecordDelivery(ctx context.Context, handlerKey, mode string, duration time.Duration, err error)

	// RecordRegistration records a register (delta > 0) or unregister (delta < 0).
	RecordRegistration(ctx context.Context, subscriberType string, delta int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	posts           metric.Int64Counter
	unhandled       metric.Int64Counter
	postLatency     metric.Float64Histogram
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	deliveryErrors  metric.Int64Counter
	subscriptions   metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel metrics instance.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	posts, err := meter.Int64Counter("eventbus.post.count",
		metric.WithDescription("Number of posted events"),
	)
	if err != nil {
		return nil, err
	}

	unhandled, err := meter.Int64Counter("eventbus.post.unhandled",
		metric.WithDescription("Number of posted events no handler received"),
	)
	if err != nil {
		return nil, err
	}

	postLatency, err := meter.Float64Histogram("eventbus.post.latency_ms",
		metric.WithDescription("Post latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("eventbus.delivery.count",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("eventbus.delivery.latency_ms",
		metric.WithDescription("Handler invocation latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	deliveryErrors, err := meter.Int64Counter("eventbus.delivery.errors",
		metric.WithDescription("Number of handler invocations that failed"),
	)
	if err != nil {
		return nil, err
	}

	subscriptions, err := meter.Int64UpDownCounter("eventbus.subscriptions",
		metric.WithDescription("Number of active subscriptions"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		posts:           posts,
		unhandled:       unhandled,
		postLatency:     postLatency,
		deliveries:      deliveries,
		deliveryLatency: deliveryLatency,
		deliveryErrors:  deliveryErrors,
		subscriptions:   subscriptions,
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

// RecordPost records a posted event.
func (m *otelMetrics) RecordPost(ctx context.Context, eventType string, deliveries int, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))

	m.posts.Add(ctx, 1, attrs)
	m.postLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if deliveries == 0 {
		m.unhandled.Add(ctx, 1, attrs)
	}
}

// RecordDelivery records a handler invocation.
func (m *otelMetrics) RecordDelivery(ctx context.Context, handlerKey, mode string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("handler", handlerKey),
		attribute.String("mode", mode),
	)

	m.deliveries.Add(ctx, 1, attrs)
	m.deliveryLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.deliveryErrors.Add(ctx, 1, attrs)
	}
}

// RecordRegistration records a subscription count change.
func (m *otelMetrics) RecordRegistration(ctx context.Context, subscriberType string, delta int64) {
	m.subscriptions.Add(ctx, delta, metric.WithAttributes(
		attribute.String("subscriber", subscriberType),
	))
}
