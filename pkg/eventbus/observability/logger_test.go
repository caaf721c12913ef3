package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records for testing.
type testHandler struct {
	buf    *bytes.Buffer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	// Build a map from the record
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}

	// Add pre-configured attrs
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}

	// Add record attrs
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	// Encode as JSON
	enc := json.NewEncoder(h.buf)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return nil
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  make([]slog.Attr, len(h.attrs)+len(attrs)),
		groups: h.groups,
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	newH := &testHandler{
		buf:    h.buf,
		level:  h.level,
		attrs:  h.attrs,
		groups: append(h.groups, name),
	}
	return newH
}

func (h *testHandler) getLastRecord() map[string]any {
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if len(lines[i]) > 0 {
			var m map[string]any
			if err := json.Unmarshal(lines[i], &m); err == nil {
				return m
			}
		}
	}
	return nil
}

func (h *testHandler) getAllRecords() []map[string]any {
	var records []map[string]any
	lines := bytes.Split(h.buf.Bytes(), []byte("\n"))
	for _, line := range lines {
		if len(line) > 0 {
			var m map[string]any
			if err := json.Unmarshal(line, &m); err == nil {
				records = append(records, m)
			}
		}
	}
	return records
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds subscription_id and handler", func(t *testing.T) {
		h := newTestHandler()
		logger := slog.New(h)

		enriched := EnrichLogger(logger, "sub-123", "app.Cart#OnOrder(app.Order")
		enriched.Info("test message")

		record := h.getLastRecord()
		require.NotNil(t, record)
		assert.Equal(t, "sub-123", record["subscription_id"])
		assert.Equal(t, "app.Cart#OnOrder(app.Order", record["handler"])
		assert.Equal(t, "test message", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "sub-123", "key"))
	})
}

func TestLogRegisterAndUnregister(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogRegister(logger, "*app.Cart", 3)
	LogUnregister(logger, "*app.Cart", 3)

	records := h.getAllRecords()
	require.Len(t, records, 2)
	assert.Equal(t, "DEBUG", records[0]["level"])
	assert.Equal(t, "subscriber registered", records[0]["msg"])
	assert.Equal(t, "*app.Cart", records[0]["subscriber"])
	assert.Equal(t, float64(3), records[0]["handlers"])
	assert.Equal(t, "subscriber unregistered", records[1]["msg"])

	assert.NotPanics(t, func() {
		LogRegister(nil, "x", 1)
		LogUnregister(nil, "x", 1)
	})
}

func TestLogPost(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogPost(logger, "app.Order", 2, 1.5)

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "event posted", record["msg"])
	assert.Equal(t, "app.Order", record["event_type"])
	assert.Equal(t, float64(2), record["deliveries"])
	assert.Equal(t, 1.5, record["duration_ms"])

	assert.NotPanics(t, func() { LogPost(nil, "x", 0, 0) })
}

func TestLogNoSubscribers(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogNoSubscribers(logger, "app.Orphan")

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "DEBUG", record["level"])
	assert.Equal(t, "no subscribers registered for event", record["msg"])
	assert.Equal(t, "app.Orphan", record["event_type"])

	assert.NotPanics(t, func() { LogNoSubscribers(nil, "x") })
}

func TestLogHandlerError(t *testing.T) {
	h := newTestHandler()
	logger := EnrichLogger(slog.New(h), "sub-1", "app.Cart#OnOrder(app.Order")

	LogHandlerError(logger, "app.Order", errors.New("out of stock"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "ERROR", record["level"])
	assert.Equal(t, "handler failed", record["msg"])
	assert.Equal(t, "sub-1", record["subscription_id"])
	assert.Equal(t, "app.Cart#OnOrder(app.Order", record["handler"])
	assert.Equal(t, "app.Order", record["event_type"])
	assert.Equal(t, "out of stock", record["error"])

	assert.NotPanics(t, func() { LogHandlerError(nil, "e", errors.New("err")) })
}

func TestLogStickyPersistError(t *testing.T) {
	h := newTestHandler()
	logger := slog.New(h)

	LogStickyPersistError(logger, "app.Location", "save", errors.New("disk full"))

	record := h.getLastRecord()
	require.NotNil(t, record)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "sticky persistence failed", record["msg"])
	assert.Equal(t, "app.Location", record["event_type"])
	assert.Equal(t, "save", record["operation"])
	assert.Equal(t, "disk full", record["error"])

	assert.NotPanics(t, func() { LogStickyPersistError(nil, "e", "op", errors.New("err")) })
}

func TestTimedOperation(t *testing.T) {
	t.Run("measures duration", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(10 * time.Millisecond)
		duration := done()

		assert.GreaterOrEqual(t, duration, 10.0)
		assert.Less(t, duration, 1000.0)
	})

	t.Run("can be called multiple times", func(t *testing.T) {
		done := TimedOperation()
		time.Sleep(5 * time.Millisecond)
		d1 := done()
		time.Sleep(5 * time.Millisecond)
		d2 := done()

		assert.Greater(t, d2, d1)
	})
}
