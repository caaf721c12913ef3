/*
Package eventbus is an in-process publish/subscribe bus for Go values.

# Overview

A subscriber is a pointer to a struct whose handler methods take one event
argument, optionally preceded by a context.Context and optionally returning
an error:

	type Cart struct{ items int }

	func (c *Cart) OnItemAdded(e ItemAdded)                         { c.items++ }
	func (c *Cart) OnCheckout(ctx context.Context, e Checkout) error { return nil }

Handlers are found by name prefix ("On" by default) or listed explicitly by
a Bindings method (see subscriber.Binder), which also sets each handler's
thread mode, priority and sticky flag.

	bus := eventbus.New()
	defer bus.Close(ctx)

	cart := &Cart{}
	if err := bus.Register(ctx, cart); err != nil {
	    return err
	}
	err := bus.Post(ctx, ItemAdded{SKU: "A-1"})

# Handler Identity

Every handler is described by a subscriber.Method whose identity is the
declaring type, method name and event type. A handler promoted from an
embedded struct has the same identity as the embedded type's own handler, so
a subscriber is never registered twice for the same method and Register
returns ErrAlreadyRegistered instead.

# Delivery

Handlers of the event's dynamic type run first, then handlers of registered
interface types the event implements (disable with WithEventInheritance).
Within one type, handlers run by descending priority and then registration
order. Each handler's thread mode picks where it runs:

	Posting      inline, before Post returns
	Main         on the MainExecutor, inline when already on it or when none is set
	MainOrdered  always queued on the MainExecutor, inline when none is set
	Background   on the bus's single background goroutine, in order
	Async        on its own goroutine, bounded by WithAsyncLimit

A posting-mode handler may call CancelDelivery to stop lower-priority
handlers from receiving the event.

# Failures

A handler that returns an error or panics produces a SubscriberError. It is
logged, reported as a SubscriberExceptionEvent, or returned from Post when
WithThrowSubscriberException is set and the handler ran inline. Events that
reach no handler are reported as a NoSubscriberEvent.

# Sticky Events

PostSticky keeps the latest event of each type. Sticky handlers receive it
when they register. With WithStickyStore the events survive restarts:

	store, err := sticky.NewSQLiteStore("sticky.db")
	bus := eventbus.New(eventbus.WithStickyStore(store))
	bus.RestoreSticky(Location{})
	loc, ok := eventbus.StickyEventOf[Location](bus)

# Observability

The bus logs through log/slog and, when enabled with WithMetrics and
WithTracing, records OpenTelemetry metrics and spans for every post and
delivery. See the observability package.

# Configuration

Settings live in the "eventbus" section of a YAML or JSON file:

	cfg, err := eventbus.LoadConfig("app.yaml")
	if err != nil {
	    return err
	}
	bus := eventbus.NewWithConfig(cfg)

Unknown keys in the section are rejected with ErrUnknownSetting.
*/
package eventbus
