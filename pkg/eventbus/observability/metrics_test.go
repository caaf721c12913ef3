package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupMetricsTest creates a test meter provider and returns a function to collect metrics.
func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, func()) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	// Save the original provider
	originalProvider := otel.GetMeterProvider()

	// Set test provider
	otel.SetMeterProvider(provider)

	// Return cleanup function
	cleanup := func() {
		otel.SetMeterProvider(originalProvider)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	}

	return reader, cleanup
}

// collectMetrics collects all metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)
	return &rm
}

// findMetric finds a metric by name in the collected data.
func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, attr := range attrs {
		if string(attr.Key) == key && attr.Value.AsString() == value {
			return true
		}
	}
	return false
}

func TestNewMetricsRecorder(t *testing.T) {
	_, cleanup := setupMetricsTest(t)
	defer cleanup()

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)

	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop, "Expected real metrics recorder, got noop")
}

func TestRecordPost(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("records post count and latency", func(t *testing.T) {
		m.RecordPost(ctx, "app.Order", 2, 3*time.Millisecond)

		rm := collectMetrics(t, reader)
		count := findMetric(rm, "eventbus.post.count")
		require.NotNil(t, count)
		sum, ok := count.Data.(metricdata.Sum[int64])
		require.True(t, ok, "Expected Sum type")
		require.NotEmpty(t, sum.DataPoints)

		found := false
		for _, dp := range sum.DataPoints {
			if hasAttr(dp.Attributes.ToSlice(), "event_type", "app.Order") {
				found = true
				assert.Equal(t, int64(1), dp.Value)
			}
		}
		assert.True(t, found, "Expected datapoint for event_type=app.Order")

		latency := findMetric(rm, "eventbus.post.latency_ms")
		require.NotNil(t, latency)
		hist, ok := latency.Data.(metricdata.Histogram[float64])
		require.True(t, ok, "Expected Histogram type")
		require.NotEmpty(t, hist.DataPoints)
	})

	t.Run("counts unhandled events", func(t *testing.T) {
		m.RecordPost(ctx, "app.Orphan", 0, time.Millisecond)

		rm := collectMetrics(t, reader)
		unhandled := findMetric(rm, "eventbus.post.unhandled")
		require.NotNil(t, unhandled)
		sum, ok := unhandled.Data.(metricdata.Sum[int64])
		require.True(t, ok)
		require.Len(t, sum.DataPoints, 1)
		assert.True(t, hasAttr(sum.DataPoints[0].Attributes.ToSlice(), "event_type", "app.Orphan"))
	})
}

func TestRecordDelivery(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordDelivery(ctx, "app.Cart#OnOrder(app.Order", "posting", time.Millisecond, nil)
	m.RecordDelivery(ctx, "app.Cart#OnOrder(app.Order", "posting", time.Millisecond, errors.New("boom"))

	rm := collectMetrics(t, reader)

	deliveries := findMetric(rm, "eventbus.delivery.count")
	require.NotNil(t, deliveries)
	sum, ok := deliveries.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	assert.True(t, hasAttr(sum.DataPoints[0].Attributes.ToSlice(), "mode", "posting"))

	errs := findMetric(rm, "eventbus.delivery.errors")
	require.NotNil(t, errs)
	errSum, ok := errs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errSum.DataPoints, 1)
	assert.Equal(t, int64(1), errSum.DataPoints[0].Value)

	require.NotNil(t, findMetric(rm, "eventbus.delivery.latency_ms"))
}

func TestRecordRegistration(t *testing.T) {
	reader, cleanup := setupMetricsTest(t)
	defer cleanup()

	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordRegistration(ctx, "*app.Cart", 3)
	m.RecordRegistration(ctx, "*app.Cart", -1)

	rm := collectMetrics(t, reader)
	subs := findMetric(rm, "eventbus.subscriptions")
	require.NotNil(t, subs)
	sum, ok := subs.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
	assert.False(t, sum.IsMonotonic)
}
