// Package observability provides the event bus's structured logging,
// metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds subscription context to a logger.
// Returns a new logger with subscription_id and handler fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, sub.ID, method.IdentityKey())
//	enriched.Debug("delivering") // includes subscription_id, handler
func EnrichLogger(logger *slog.Logger, subscriptionID, handlerKey string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("subscription_id", subscriptionID),
		slog.String("handler", handlerKey),
	)
}

// LogRegister logs a subscriber registration.
func LogRegister(logger *slog.Logger, subscriberType string, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber registered",
		slog.String("subscriber", subscriberType),
		slog.Int("handlers", handlers),
	)
}

// LogUnregister logs a subscriber removal.
func LogUnregister(logger *slog.Logger, subscriberType string, handlers int) {
	if logger == nil {
		return
	}
	logger.Debug("subscriber unregistered",
		slog.String("subscriber", subscriberType),
		slog.Int("handlers", handlers),
	)
}

// LogPost logs a completed post.
func LogPost(logger *slog.Logger, eventType string, deliveries int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event posted",
		slog.String("event_type", eventType),
		slog.Int("deliveries", deliveries),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNoSubscribers logs an event nobody was registered for.
func LogNoSubscribers(logger *slog.Logger, eventType string) {
	if logger == nil {
		return
	}
	logger.Debug("no subscribers registered for event",
		slog.String("event_type", eventType),
	)
}

// LogHandlerError logs a handler that returned an error or panicked.
// Pass a logger from EnrichLogger so the record names the subscription.
func LogHandlerError(logger *slog.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// LogStickyPersistError logs a sticky store failure (non-fatal).
func LogStickyPersistError(logger *slog.Logger, eventType string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("sticky persistence failed",
		slog.String("event_type", eventType),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
