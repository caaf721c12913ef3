package eventbus

import (
	"errors"
	"fmt"
)

// Sentinel errors for registration.
var (
	// ErrNilSubscriber indicates Register or Unregister was called with nil.
	ErrNilSubscriber = errors.New("subscriber cannot be nil")

	// ErrAlreadyRegistered indicates a subscriber already holds an equal handler.
	ErrAlreadyRegistered = errors.New("subscriber already registered")

	// ErrNotRegistered indicates Unregister was called for an unknown subscriber.
	ErrNotRegistered = errors.New("subscriber not registered")
)

// Sentinel errors for posting.
var (
	// ErrNilEvent indicates Post was called with a nil event.
	ErrNilEvent = errors.New("event cannot be nil")

	// ErrBusClosed indicates the bus no longer accepts work.
	ErrBusClosed = errors.New("event bus closed")

	// ErrHandlerPanicked marks a SubscriberError caused by a panic.
	ErrHandlerPanicked = errors.New("handler panicked")

	// ErrCancelNotAllowed indicates CancelDelivery was called outside a
	// posting-mode handler.
	ErrCancelNotAllowed = errors.New("delivery can only be cancelled from a posting-mode handler")
)

// ErrUnknownSetting indicates a settings section holds a key the bus does not read.
var ErrUnknownSetting = errors.New("unknown event bus setting")

// SubscriberError describes a handler that returned an error or panicked.
type SubscriberError struct {
	// SubscriptionID identifies the subscription that failed.
	SubscriptionID string
	// Handler is the identity key of the failing handler.
	Handler string
	// Subscriber is the registered subscriber instance.
	Subscriber any
	// Event is the event being delivered.
	Event any
	// Err is the handler's error, or ErrHandlerPanicked wrapping the panic value.
	Err error
	// Stack is the stack trace when the handler panicked.
	Stack string
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// Panicked reports whether the handler panicked rather than returning an error.
func (e *SubscriberError) Panicked() bool {
	return errors.Is(e.Err, ErrHandlerPanicked)
}
