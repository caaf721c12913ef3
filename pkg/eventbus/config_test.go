package eventbus_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := eventbus.DefaultConfig()

	assert.True(t, cfg.LogSubscriberExceptions)
	assert.True(t, cfg.LogNoSubscriberMessages)
	assert.True(t, cfg.SendSubscriberExceptionEvent)
	assert.True(t, cfg.SendNoSubscriberEvent)
	assert.True(t, cfg.EventInheritance)
	assert.False(t, cfg.ThrowSubscriberException)
	assert.False(t, cfg.StrictMethodVerification)
	assert.Equal(t, "On", cfg.HandlerPrefix)
	assert.Equal(t, 1024, cfg.BackgroundQueueSize)
	assert.Zero(t, cfg.AsyncLimit)
	assert.NotNil(t, cfg.Logger)
	assert.IsType(t, observability.NoopMetrics{}, cfg.Metrics)
	assert.IsType(t, observability.NoopSpanManager{}, cfg.Spans)
}

func TestConfigFrom(t *testing.T) {
	src, err := config.FromYAML([]byte(`
log_subscriber_exceptions: false
log_no_subscriber_messages: false
send_subscriber_exception_event: false
send_no_subscriber_event: false
throw_subscriber_exception: true
event_inheritance: false
strict_method_verification: true
handler_prefix: Handle
background_queue_size: 16
async_limit: 4
close_timeout: 3s
`))
	require.NoError(t, err)

	cfg, err := eventbus.ConfigFrom(src)
	require.NoError(t, err)

	assert.False(t, cfg.LogSubscriberExceptions)
	assert.False(t, cfg.LogNoSubscriberMessages)
	assert.False(t, cfg.SendSubscriberExceptionEvent)
	assert.False(t, cfg.SendNoSubscriberEvent)
	assert.True(t, cfg.ThrowSubscriberException)
	assert.False(t, cfg.EventInheritance)
	assert.True(t, cfg.StrictMethodVerification)
	assert.Equal(t, "Handle", cfg.HandlerPrefix)
	assert.Equal(t, 16, cfg.BackgroundQueueSize)
	assert.Equal(t, 4, cfg.AsyncLimit)
	assert.Equal(t, 3*time.Second, cfg.CloseTimeout)
	assert.Nil(t, cfg.StickyStore)
}

func TestConfigFromDefaults(t *testing.T) {
	cfg, err := eventbus.ConfigFrom(config.New(nil))
	require.NoError(t, err)

	def := eventbus.DefaultConfig()
	assert.Equal(t, def.HandlerPrefix, cfg.HandlerPrefix)
	assert.Equal(t, def.BackgroundQueueSize, cfg.BackgroundQueueSize)
	assert.Equal(t, def.EventInheritance, cfg.EventInheritance)
}

func TestConfigFromObservability(t *testing.T) {
	cfg, err := eventbus.ConfigFrom(config.New(map[string]any{
		"metrics_enabled": true,
		"tracing_enabled": true,
	}))
	require.NoError(t, err)

	assert.NotEqual(t, observability.NoopMetrics{}, cfg.Metrics)
	assert.NotEqual(t, observability.NoopSpanManager{}, cfg.Spans)
}

func TestConfigFromStickyDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sticky.db")
	cfg, err := eventbus.ConfigFrom(config.New(map[string]any{"sticky_db": path}))
	require.NoError(t, err)
	require.NotNil(t, cfg.StickyStore)

	cfg.Logger = nil
	bus := eventbus.NewWithConfig(cfg)
	ctx := context.Background()
	require.NoError(t, bus.PostSticky(ctx, Location{Lat: 9}))

	infos, err := cfg.StickyStore.List()
	require.NoError(t, err)
	assert.Len(t, infos, 1)

	require.NoError(t, bus.Close(ctx))
	_, err = cfg.StickyStore.List()
	assert.Error(t, err)
}

func TestConfigFromUnknownSetting(t *testing.T) {
	_, err := eventbus.ConfigFrom(config.New(map[string]any{
		"async_limit":        2,
		"backgroundQueue":    8,
		"log_no_subscribers": false,
	}))
	require.ErrorIs(t, err, eventbus.ErrUnknownSetting)
	assert.Contains(t, err.Error(), "backgroundQueue, log_no_subscribers")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8080
eventbus:
  handler_prefix: Handle
  async_limit: 4
`), 0o644))

	cfg, err := eventbus.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Handle", cfg.HandlerPrefix)
	assert.Equal(t, 4, cfg.AsyncLimit)
	assert.True(t, cfg.EventInheritance)
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("eventbus:\n  queue: 1\n"), 0o644))

	_, err := eventbus.LoadConfig(unknown)
	assert.ErrorIs(t, err, eventbus.ErrUnknownSetting)

	_, err = eventbus.LoadConfig(filepath.Join(dir, "app.ini"))
	assert.ErrorIs(t, err, config.ErrUnsupportedFormat)

	_, err = eventbus.LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load event bus config")
}

func TestConfigFromInvalidStickyDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "sticky.db")
	_, err := eventbus.ConfigFrom(config.New(map[string]any{"sticky_db": path}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open sticky store")
}

func TestOptions(t *testing.T) {
	exec := eventbus.NewLoopExecutor()
	cfg := eventbus.DefaultConfig()
	for _, opt := range []eventbus.Option{
		eventbus.WithLogger(nil),
		eventbus.WithMainExecutor(exec),
		eventbus.WithEventInheritance(false),
		eventbus.WithHandlerPrefix("Handle"),
		eventbus.WithHandlerPrefix(""),
		eventbus.WithStrictMethodVerification(true),
		eventbus.WithBackgroundQueueSize(8),
		eventbus.WithBackgroundQueueSize(0),
		eventbus.WithAsyncLimit(3),
		eventbus.WithAsyncLimit(-1),
		eventbus.WithCloseTimeout(time.Second),
		eventbus.WithThrowSubscriberException(true),
		eventbus.WithLogSubscriberExceptions(false),
		eventbus.WithLogNoSubscriberMessages(false),
		eventbus.WithSendSubscriberExceptionEvent(false),
		eventbus.WithSendNoSubscriberEvent(false),
		eventbus.WithMetrics(false),
		eventbus.WithTracing(false),
	} {
		opt(&cfg)
	}

	assert.Nil(t, cfg.Logger)
	assert.Same(t, exec, cfg.MainExecutor)
	assert.False(t, cfg.EventInheritance)
	assert.Equal(t, "Handle", cfg.HandlerPrefix)
	assert.True(t, cfg.StrictMethodVerification)
	assert.Equal(t, 8, cfg.BackgroundQueueSize)
	assert.Equal(t, 3, cfg.AsyncLimit)
	assert.Equal(t, time.Second, cfg.CloseTimeout)
	assert.True(t, cfg.ThrowSubscriberException)
	assert.False(t, cfg.LogSubscriberExceptions)
	assert.False(t, cfg.LogNoSubscriberMessages)
	assert.False(t, cfg.SendSubscriberExceptionEvent)
	assert.False(t, cfg.SendNoSubscriberEvent)
	assert.IsType(t, observability.NoopMetrics{}, cfg.Metrics)
}

type Command struct{ Name string }

type CommandHandler struct{ log *journal }

func (c *CommandHandler) HandleCommand(cmd Command) { c.log.add(cmd.Name) }

func TestCustomHandlerPrefix(t *testing.T) {
	bus := newBus(t, eventbus.WithHandlerPrefix("Handle"))
	log := &journal{}
	ctx := context.Background()

	require.NoError(t, bus.Register(ctx, &CommandHandler{log: log}))
	require.NoError(t, bus.Post(ctx, Command{Name: "build"}))
	assert.Equal(t, []string{"build"}, log.list())
}

type sloppyListener struct{ seen int }

func (s *sloppyListener) OnMessage(Message) { s.seen++ }

func (*sloppyListener) OnPair(a, b Message) {}

func TestStrictMethodVerification(t *testing.T) {
	ctx := context.Background()

	lax := newBus(t)
	require.NoError(t, lax.Register(ctx, &sloppyListener{}))

	strict := newBus(t, eventbus.WithStrictMethodVerification(true))
	assert.Error(t, strict.Register(ctx, &sloppyListener{}))
}

func TestCloseTimeout(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)

	bus := eventbus.New(eventbus.WithLogger(nil), eventbus.WithCloseTimeout(20*time.Millisecond))
	ctx := context.Background()
	require.NoError(t, bus.Register(ctx, &BackgroundListener{log: &journal{}, gate: gate}))
	require.NoError(t, bus.Post(ctx, Message{}))

	err := bus.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, bus.Closed())
}
