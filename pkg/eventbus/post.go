package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/subscriber"
)

// postingState tracks one Post call for CancelDelivery.
type postingState struct {
	inHandler atomic.Bool
	canceled  atomic.Bool
}

// CancelDelivery stops the current event from reaching lower-priority
// handlers. Only a posting-mode handler may call it, with the ctx it was
// given, while it is running.
func CancelDelivery(ctx context.Context) error {
	state, _ := ctx.Value(postingKey).(*postingState)
	if state == nil || !state.inHandler.Load() {
		return ErrCancelNotAllowed
	}
	state.canceled.Store(true)
	return nil
}

// detach hides any enclosing posting state from deliveries that are not
// posting-mode.
func detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, postingKey, (*postingState)(nil))
}

// Post delivers event to every matching handler.
//
// Posting handlers run before Post returns, in priority order. Main,
// MainOrdered, Background, and Async handlers are handed to their executor;
// see subscriber.ThreadMode. Post returns an inline handler failure only when
// ThrowSubscriberException is set.
func (b *Bus) Post(ctx context.Context, event any) error {
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

	return b.post(ctx, event)
}

func (b *Bus) post(ctx context.Context, event any) error {
	eventType := reflect.TypeOf(event)
	name := subscriber.TypeName(eventType)

	ctx, span := b.spans.StartPostSpan(ctx, name)
	done := observability.TimedOperation()
	start := time.Now()
	b.posted.Add(1)

	subs := b.subscriptionsFor(eventType)
	state := &postingState{}

	var err error
	delivered := 0
	for _, s := range subs {
		if state.canceled.Load() {
			break
		}
		if !s.active.Load() {
			continue
		}
		delivered++
		if err = b.dispatch(ctx, s, event, state); err != nil {
			break
		}
	}

	if len(subs) == 0 {
		err = b.noSubscriber(ctx, event, name)
	}

	b.metrics.RecordPost(ctx, name, delivered, time.Since(start))
	observability.LogPost(b.logger, name, delivered, done())
	b.spans.EndSpanWithError(span, err)
	return err
}

// dispatch hands one delivery to the executor its thread mode selects.
// Only inline deliveries can return a handler failure.
func (b *Bus) dispatch(ctx context.Context, s *subscription, event any, state *postingState) error {
	exec := b.cfg.MainExecutor

	switch s.method.Mode() {
	case subscriber.Posting:
		state.inHandler.Store(true)
		defer state.inHandler.Store(false)
		return b.invoke(context.WithValue(ctx, postingKey, state), s, event, true)

	case subscriber.Main:
		if exec == nil || OnMain(ctx) {
			return b.invoke(detach(ctx), s, event, true)
		}
		b.enqueueMain(ctx, s, event)
		return nil

	case subscriber.MainOrdered:
		if exec == nil {
			return b.invoke(detach(ctx), s, event, true)
		}
		b.enqueueMain(ctx, s, event)
		return nil

	case subscriber.Background:
		if onBackground(ctx) {
			return b.invoke(detach(ctx), s, event, true)
		}
		return b.enqueueBackground(ctx, s, event)

	case subscriber.Async:
		actx := detach(context.WithoutCancel(ctx))
		b.async.Go(func() error {
			_ = b.invoke(actx, s, event, false)
			return nil
		})
		return nil
	}
	return fmt.Errorf("unknown thread mode %s", s.method.Mode())
}

func (b *Bus) enqueueMain(ctx context.Context, s *subscription, event any) {
	mctx := detach(WithMain(context.WithoutCancel(ctx)))
	b.cfg.MainExecutor.Execute(func() {
		_ = b.invoke(mctx, s, event, false)
	})
}

// enqueueBackground blocks while the queue is full until ctx is done.
// Handlers on the background goroutine never get here with their own
// delivery context; dispatch runs those inline.
func (b *Bus) enqueueBackground(ctx context.Context, s *subscription, event any) error {
	task := backgroundTask{
		ctx:   detach(context.WithoutCancel(ctx)),
		sub:   s,
		event: event,
	}

	select {
	case b.background <- task:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue background delivery: %w", ctx.Err())
	case <-b.closing:
		return ErrBusClosed
	}
}

// runBackground is the single Background delivery goroutine. After closing
// it drains what is queued and exits.
func (b *Bus) runBackground() {
	defer close(b.bgDone)

	for {
		select {
		case task := <-b.background:
			b.runBackgroundTask(task)
		case <-b.closing:
			for {
				select {
				case task := <-b.background:
					b.runBackgroundTask(task)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) runBackgroundTask(task backgroundTask) {
	ctx := context.WithValue(task.ctx, backgroundKey, true)
	_ = b.invoke(ctx, task.sub, task.event, false)
}

// invoke calls the handler and routes a failure. inline reports whether the
// caller is the posting goroutine, which is the only place a failure can be
// returned to.
func (b *Bus) invoke(ctx context.Context, s *subscription, event any, inline bool) error {
	if !s.active.Load() {
		return nil
	}

	key := s.method.IdentityKey()
	mode := s.method.Mode().String()
	ctx, span := b.spans.StartDeliverySpan(ctx, key, mode)
	start := time.Now()

	err := b.call(ctx, s, event)

	b.metrics.RecordDelivery(ctx, key, mode, time.Since(start), err)
	b.spans.EndSpanWithError(span, err)

	if err == nil {
		b.delivered.Add(1)
		return nil
	}
	return b.handleFailure(ctx, s, err, inline)
}

// call runs the handler, converting a panic into a SubscriberError.
func (b *Bus) call(ctx context.Context, s *subscription, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = s.failure(event, fmt.Errorf("%w: %v", ErrHandlerPanicked, r), string(debug.Stack()))
		}
	}()

	if herr := s.method.Invoke(ctx, s.subscriber, event); herr != nil {
		return s.failure(event, herr, "")
	}
	return nil
}

func (b *Bus) handleFailure(ctx context.Context, s *subscription, err error, inline bool) error {
	var serr *SubscriberError
	if !errors.As(err, &serr) {
		serr = s.failure(nil, err, "")
	}
	if serr.Panicked() {
		b.handlerPanics.Add(1)
	} else {
		b.handlerErrors.Add(1)
	}

	eventName := subscriber.TypeName(reflect.TypeOf(serr.Event))

	switch serr.Event.(type) {
	case SubscriberExceptionEvent, *SubscriberExceptionEvent:
		if b.cfg.LogSubscriberExceptions {
			observability.LogHandlerError(s.logger, eventName, serr.Err)
		}
		return nil
	}

	if b.cfg.ThrowSubscriberException && inline {
		return serr
	}
	if b.cfg.LogSubscriberExceptions {
		observability.LogHandlerError(s.logger, eventName, serr.Err)
	}
	if b.cfg.SendSubscriberExceptionEvent {
		exEvent := SubscriberExceptionEvent{
			Bus:               b,
			Err:               serr,
			CausingEvent:      serr.Event,
			CausingSubscriber: serr.Subscriber,
		}
		if perr := b.Post(ctx, exEvent); perr != nil && !errors.Is(perr, ErrBusClosed) {
			s.logger.Debug("posting subscriber exception event failed", slog.String("error", perr.Error()))
		}
	}
	return nil
}

func (b *Bus) noSubscriber(ctx context.Context, event any, name string) error {
	b.unhandled.Add(1)
	if b.cfg.LogNoSubscriberMessages {
		observability.LogNoSubscribers(b.logger, name)
	}
	b.spans.AddSpanEvent(ctx, "no_subscribers", attribute.String("event.type", name))

	if !b.cfg.SendNoSubscriberEvent || isBusEvent(event) {
		return nil
	}
	err := b.Post(ctx, NoSubscriberEvent{Bus: b, OriginalEvent: event})
	if errors.Is(err, ErrBusClosed) {
		return nil
	}
	return err
}
