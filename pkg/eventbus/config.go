package eventbus

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus/config"
	"github.com/randalmurphal/eventbus/pkg/eventbus/finder"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/sticky"
)

// Config holds Bus settings. Start from DefaultConfig; the zero value
// disables every logging and event-reporting flag.
type Config struct {
	// LogSubscriberExceptions logs failing handlers.
	LogSubscriberExceptions bool
	// LogNoSubscriberMessages logs events that reached no handler.
	LogNoSubscriberMessages bool
	// SendSubscriberExceptionEvent posts a SubscriberExceptionEvent for failing handlers.
	SendSubscriberExceptionEvent bool
	// SendNoSubscriberEvent posts a NoSubscriberEvent for unhandled events.
	SendNoSubscriberEvent bool
	// ThrowSubscriberException makes Post return the first inline handler failure
	// and stop delivering that event.
	ThrowSubscriberException bool
	// EventInheritance also delivers events to handlers of interfaces they implement.
	EventInheritance bool
	// StrictMethodVerification rejects subscribers with prefixed methods whose
	// signature cannot be a handler.
	StrictMethodVerification bool

	// HandlerPrefix selects handler methods on types without bindings.
	HandlerPrefix string
	// BackgroundQueueSize bounds the Background delivery queue.
	BackgroundQueueSize int
	// AsyncLimit caps concurrent Async deliveries; 0 means unlimited.
	// Async handlers that post Async events need it unset.
	AsyncLimit int
	// CloseTimeout bounds Close when its context has no deadline; 0 waits forever.
	CloseTimeout time.Duration

	// MainExecutor runs Main and MainOrdered deliveries. Nil runs them inline.
	MainExecutor MainExecutor
	// StickyStore persists sticky events. The bus closes it on Close.
	StickyStore sticky.Store

	Logger  *slog.Logger
	Metrics observability.MetricsRecorder
	Spans   observability.SpanManager
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		LogSubscriberExceptions:      true,
		LogNoSubscriberMessages:      true,
		SendSubscriberExceptionEvent: true,
		SendNoSubscriberEvent:        true,
		EventInheritance:             true,
		HandlerPrefix:                finder.DefaultPrefix,
		BackgroundQueueSize:          1024,
		Logger:                       slog.Default(),
		Metrics:                      observability.NoopMetrics{},
		Spans:                        observability.NoopSpanManager{},
	}
}

// settingKeys lists every key ConfigFrom reads.
var settingKeys = []string{
	"log_subscriber_exceptions",
	"log_no_subscriber_messages",
	"send_subscriber_exception_event",
	"send_no_subscriber_event",
	"throw_subscriber_exception",
	"event_inheritance",
	"strict_method_verification",
	"handler_prefix",
	"background_queue_size",
	"async_limit",
	"close_timeout",
	"metrics_enabled",
	"tracing_enabled",
	"sticky_db",
}

// LoadConfig reads the eventbus section of the settings file at path and
// maps it with ConfigFrom.
func LoadConfig(path string) (Config, error) {
	section, err := config.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("load event bus config: %w", err)
	}
	return ConfigFrom(section)
}

// ConfigFrom overlays DefaultConfig with the snake_case keys of cfg.
// Keys it does not know fail with ErrUnknownSetting. A non-empty sticky_db
// opens a SQLite sticky store at that path.
//
// Example YAML:
//
//	log_no_subscriber_messages: false
//	event_inheritance: true
//	background_queue_size: 256
//	async_limit: 8
//	close_timeout: 5s
//	metrics_enabled: true
//	sticky_db: /var/lib/app/sticky.db
func ConfigFrom(cfg config.Config) (Config, error) {
	if unknown := cfg.Unknown(settingKeys...); len(unknown) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownSetting, strings.Join(unknown, ", "))
	}

	c := DefaultConfig()
	c.LogSubscriberExceptions = cfg.Bool("log_subscriber_exceptions", c.LogSubscriberExceptions)
	c.LogNoSubscriberMessages = cfg.Bool("log_no_subscriber_messages", c.LogNoSubscriberMessages)
	c.SendSubscriberExceptionEvent = cfg.Bool("send_subscriber_exception_event", c.SendSubscriberExceptionEvent)
	c.SendNoSubscriberEvent = cfg.Bool("send_no_subscriber_event", c.SendNoSubscriberEvent)
	c.ThrowSubscriberException = cfg.Bool("throw_subscriber_exception", c.ThrowSubscriberException)
	c.EventInheritance = cfg.Bool("event_inheritance", c.EventInheritance)
	c.StrictMethodVerification = cfg.Bool("strict_method_verification", c.StrictMethodVerification)
	c.HandlerPrefix = cfg.String("handler_prefix", c.HandlerPrefix)
	c.BackgroundQueueSize = cfg.Int("background_queue_size", c.BackgroundQueueSize)
	c.AsyncLimit = cfg.Int("async_limit", c.AsyncLimit)
	c.CloseTimeout = cfg.Duration("close_timeout", c.CloseTimeout)

	WithMetrics(cfg.Bool("metrics_enabled", false))(&c)
	WithTracing(cfg.Bool("tracing_enabled", false))(&c)

	if path := cfg.String("sticky_db", ""); path != "" {
		store, err := sticky.NewSQLiteStore(path)
		if err != nil {
			return Config{}, fmt.Errorf("open sticky store: %w", err)
		}
		c.StickyStore = store
	}
	return c, nil
}

// Option configures a Bus.
type Option func(*Config)

// WithLogger sets the logger. Nil discards all output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
func WithMetrics(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			c.Metrics = observability.NewMetricsRecorder()
		} else {
			c.Metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing.
func WithTracing(enabled bool) Option {
	return func(c *Config) {
		if enabled {
			c.Spans = observability.NewSpanManager()
		} else {
			c.Spans = observability.NoopSpanManager{}
		}
	}
}

// WithMainExecutor sets the executor for Main and MainOrdered handlers.
func WithMainExecutor(exec MainExecutor) Option {
	return func(c *Config) {
		c.MainExecutor = exec
	}
}

// WithStickyStore persists sticky events to store.
func WithStickyStore(store sticky.Store) Option {
	return func(c *Config) {
		c.StickyStore = store
	}
}

// WithEventInheritance toggles delivery to interface handlers.
// Default: true
func WithEventInheritance(enabled bool) Option {
	return func(c *Config) {
		c.EventInheritance = enabled
	}
}

// WithHandlerPrefix sets the method prefix used to find handlers.
// Default: "On"
func WithHandlerPrefix(prefix string) Option {
	return func(c *Config) {
		if prefix != "" {
			c.HandlerPrefix = prefix
		}
	}
}

// WithStrictMethodVerification rejects prefixed methods that cannot be handlers.
func WithStrictMethodVerification(strict bool) Option {
	return func(c *Config) {
		c.StrictMethodVerification = strict
	}
}

// WithBackgroundQueueSize sets the Background queue capacity.
// Default: 1024
func WithBackgroundQueueSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.BackgroundQueueSize = size
		}
	}
}

// WithAsyncLimit caps concurrent Async deliveries.
func WithAsyncLimit(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.AsyncLimit = n
		}
	}
}

// WithCloseTimeout bounds Close when its context has no deadline.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CloseTimeout = d
	}
}

// WithThrowSubscriberException makes Post return inline handler failures.
func WithThrowSubscriberException(enabled bool) Option {
	return func(c *Config) {
		c.ThrowSubscriberException = enabled
	}
}

// WithLogSubscriberExceptions toggles logging of handler failures.
func WithLogSubscriberExceptions(enabled bool) Option {
	return func(c *Config) {
		c.LogSubscriberExceptions = enabled
	}
}

// WithLogNoSubscriberMessages toggles logging of unhandled events.
func WithLogNoSubscriberMessages(enabled bool) Option {
	return func(c *Config) {
		c.LogNoSubscriberMessages = enabled
	}
}

// WithSendSubscriberExceptionEvent toggles SubscriberExceptionEvent.
func WithSendSubscriberExceptionEvent(enabled bool) Option {
	return func(c *Config) {
		c.SendSubscriberExceptionEvent = enabled
	}
}

// WithSendNoSubscriberEvent toggles NoSubscriberEvent.
func WithSendNoSubscriberEvent(enabled bool) Option {
	return func(c *Config) {
		c.SendNoSubscriberEvent = enabled
	}
}
