package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/sticky"
	"github.com/randalmurphal/eventbus/pkg/eventbus/subscriber"
)

// PostSticky keeps event as the latest of its type and posts it. Sticky
// handlers registered later receive it on registration. With a sticky store
// configured the event is also persisted; persistence failures are logged.
// A closed bus returns ErrBusClosed and keeps its sticky events unchanged.
func (b *Bus) PostSticky(ctx context.Context, event any) error {
	if isNil(event) {
		return ErrNilEvent
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !b.begin() {
		return ErrBusClosed
	}
	defer b.inflight.Done()

	eventType := reflect.TypeOf(event)
	b.sticky.Register(eventType, event)
	b.persistSticky(eventType, event)
	return b.post(ctx, event)
}

// StickyEvent returns the latest sticky event of eventType, or nil.
func (b *Bus) StickyEvent(eventType reflect.Type) any {
	event, _ := b.sticky.Get(eventType)
	return event
}

// StickyEventOf returns the latest sticky event of type T.
func StickyEventOf[T any](b *Bus) (T, bool) {
	var zero T
	event, ok := b.sticky.Get(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	typed, ok := event.(T)
	return typed, ok
}

// RemoveStickyEvent drops the sticky event of eventType and returns it.
func (b *Bus) RemoveStickyEvent(eventType reflect.Type) (any, bool) {
	event, ok := b.sticky.Delete(eventType)
	if store := b.cfg.StickyStore; store != nil {
		name := subscriber.TypeName(eventType)
		if err := store.Delete(name); err != nil {
			observability.LogStickyPersistError(b.logger, name, "delete", err)
		}
	}
	return event, ok
}

// RemoveAllStickyEvents drops every sticky event.
func (b *Bus) RemoveAllStickyEvents() {
	b.sticky.Clear()
	if store := b.cfg.StickyStore; store != nil {
		if err := store.Clear(); err != nil {
			observability.LogStickyPersistError(b.logger, "*", "clear", err)
		}
	}
}

// RestoreSticky loads persisted sticky events for the types of prototypes
// without posting them. A prototype is either a value of the event type or
// its reflect.Type. Types with nothing persisted are skipped. It returns the
// number of events restored.
//
// Example:
//
//	n, err := bus.RestoreSticky(Location{}, reflect.TypeFor[*Session]())
func (b *Bus) RestoreSticky(prototypes ...any) (int, error) {
	store := b.cfg.StickyStore
	if store == nil {
		return 0, nil
	}

	var errs []error
	restored := 0
	for _, proto := range prototypes {
		eventType, ok := proto.(reflect.Type)
		if !ok {
			eventType = reflect.TypeOf(proto)
		}
		if eventType == nil {
			continue
		}
		name := subscriber.TypeName(eventType)

		data, err := store.Load(name)
		if errors.Is(err, sticky.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", name, err))
			continue
		}

		event, err := sticky.Decode(data, name, eventType)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", name, err))
			continue
		}
		b.sticky.Register(eventType, event)
		restored++
	}
	return restored, errors.Join(errs...)
}

func (b *Bus) persistSticky(eventType reflect.Type, event any) {
	store := b.cfg.StickyStore
	if store == nil {
		return
	}
	name := subscriber.TypeName(eventType)

	data, err := sticky.Encode(name, event)
	if err != nil {
		observability.LogStickyPersistError(b.logger, name, "encode", err)
		return
	}
	if err := store.Save(name, data); err != nil {
		observability.LogStickyPersistError(b.logger, name, "save", err)
	}
}

// replaySticky delivers the cached sticky events a new sticky subscription
// matches. With event inheritance an interface handler receives every
// sticky event implementing it.
func (b *Bus) replaySticky(ctx context.Context, s *subscription) error {
	target := s.method.EventType()

	if !b.cfg.EventInheritance || target.Kind() != reflect.Interface {
		event, ok := b.sticky.Get(target)
		if !ok {
			return nil
		}
		return b.dispatch(ctx, s, event, &postingState{})
	}

	var errs []error
	b.sticky.Range(func(eventType reflect.Type, event any) bool {
		if b.assignable(eventType, target) {
			errs = append(errs, b.dispatch(ctx, s, event, &postingState{}))
		}
		return true
	})
	return errors.Join(errs...)
}
