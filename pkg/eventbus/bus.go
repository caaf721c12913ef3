package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventbus/pkg/eventbus/finder"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
	"github.com/randalmurphal/eventbus/pkg/eventbus/subscriber"
)

// Bus delivers posted events to the handlers of registered subscribers.
// It is safe for concurrent use.
type Bus struct {
	cfg     Config
	finder  *finder.Finder
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	// Subscription lists are copy-on-write so Post can iterate a snapshot.
	mu           sync.RWMutex
	byEventType  map[reflect.Type][]*subscription
	bySubscriber map[any][]*subscription
	interfaces   []reflect.Type

	implements *registry.Registry[typePair, bool]
	sticky     *registry.Registry[reflect.Type, any]

	background chan backgroundTask
	async      errgroup.Group

	lifeMu    sync.RWMutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
	closing   chan struct{}
	bgDone    chan struct{}
	stopped   chan struct{}
	closeErr  error

	posted        atomic.Uint64
	delivered     atomic.Uint64
	unhandled     atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

type typePair struct {
	event, target reflect.Type
}

type backgroundTask struct {
	ctx   context.Context
	sub   *subscription
	event any
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Posted           uint64
	Delivered        uint64
	Unhandled        uint64
	HandlerErrors    uint64
	HandlerPanics    uint64
	Subscriptions    int
	StickyEvents     int
	BackgroundQueued int
}

var (
	defaultBus     *Bus
	defaultBusOnce sync.Once
)

// Default returns a process-wide Bus with the default configuration.
func Default() *Bus {
	defaultBusOnce.Do(func() {
		defaultBus = New()
	})
	return defaultBus
}

// New creates a Bus from DefaultConfig and opts.
//
// Example:
//
//	bus := eventbus.New(
//	    eventbus.WithLogger(logger),
//	    eventbus.WithAsyncLimit(8),
//	)
//	defer bus.Close(context.Background())
func New(opts ...Option) *Bus {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Bus from cfg.
func NewWithConfig(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}
	if cfg.HandlerPrefix == "" {
		cfg.HandlerPrefix = finder.DefaultPrefix
	}
	if cfg.BackgroundQueueSize <= 0 {
		cfg.BackgroundQueueSize = DefaultConfig().BackgroundQueueSize
	}

	b := &Bus{
		cfg: cfg,
		finder: finder.New(
			finder.WithPrefix(cfg.HandlerPrefix),
			finder.WithStrict(cfg.StrictMethodVerification),
			finder.WithLogger(cfg.Logger),
		),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		spans:        cfg.Spans,
		byEventType:  make(map[reflect.Type][]*subscription),
		bySubscriber: make(map[any][]*subscription),
		implements:   registry.New[typePair, bool](),
		sticky:       registry.New[reflect.Type, any](),
		background:   make(chan backgroundTask, cfg.BackgroundQueueSize),
		closing:      make(chan struct{}),
		bgDone:       make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	if cfg.AsyncLimit > 0 {
		b.async.SetLimit(cfg.AsyncLimit)
	}

	go b.runBackground()
	return b
}

// Register subscribes every handler of sub, a pointer to a struct with at
// least one non-zero-size field. Pointers to distinct zero-size values may
// be equal, so such subscribers are rejected with finder.ErrInvalidSubscriber.
//
// The registration is rejected as a whole with ErrAlreadyRegistered when sub
// already holds a handler equal to one of its handlers. Sticky handlers
// receive matching sticky events before Register returns; their delivery
// errors are returned but do not undo the registration.
func (b *Bus) Register(ctx context.Context, sub any) error {
	if isNil(sub) {
		return ErrNilSubscriber
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !b.begin() {
		return ErrBusClosed
	}
	defer b.inflight.Done()

	subType := reflect.TypeOf(sub)
	name := subscriber.TypeName(subType)

	if subType.Kind() == reflect.Pointer && subType.Elem().Size() == 0 {
		return fmt.Errorf("register %s: %w: zero-size instances are indistinguishable", name, finder.ErrInvalidSubscriber)
	}

	methods, err := b.finder.Find(subType)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	subs, err := b.add(sub, methods)
	if err != nil {
		return fmt.Errorf("register %s: %w", name, err)
	}

	b.metrics.RecordRegistration(ctx, name, int64(len(subs)))
	observability.LogRegister(b.logger, name, len(subs))

	var errs []error
	for _, s := range subs {
		if s.method.Sticky() {
			errs = append(errs, b.replaySticky(ctx, s))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) add(sub any, methods []*subscriber.Method) ([]*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.bySubscriber[sub]
	for _, m := range methods {
		for _, s := range existing {
			if s.method.Equal(m) {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyRegistered, m.IdentityKey())
			}
		}
	}

	subs := make([]*subscription, 0, len(methods))
	for _, m := range methods {
		s := newSubscription(sub, m, b.logger)
		et := m.EventType()
		list, known := b.byEventType[et]
		if !known && et.Kind() == reflect.Interface {
			b.interfaces = append(b.interfaces, et)
		}
		b.byEventType[et] = insertByPriority(list, s)
		subs = append(subs, s)
	}
	b.bySubscriber[sub] = append(existing, subs...)
	return subs, nil
}

// Unregister removes every subscription of sub. Deliveries already queued
// for it are skipped.
func (b *Bus) Unregister(sub any) error {
	if isNil(sub) {
		return ErrNilSubscriber
	}
	name := subscriber.TypeName(reflect.TypeOf(sub))
	if !reflect.TypeOf(sub).Comparable() {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	b.mu.Lock()
	subs, ok := b.bySubscriber[sub]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(b.bySubscriber, sub)

	for _, s := range subs {
		s.active.Store(false)
		et := s.method.EventType()
		list := without(b.byEventType[et], s)
		if len(list) > 0 {
			b.byEventType[et] = list
			continue
		}
		delete(b.byEventType, et)
		if et.Kind() == reflect.Interface {
			b.interfaces = withoutType(b.interfaces, et)
		}
	}
	b.mu.Unlock()

	b.metrics.RecordRegistration(context.Background(), name, -int64(len(subs)))
	observability.LogUnregister(b.logger, name, len(subs))
	return nil
}

// IsRegistered reports whether sub has active subscriptions.
func (b *Bus) IsRegistered(sub any) bool {
	if isNil(sub) || !reflect.TypeOf(sub).Comparable() {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.bySubscriber[sub]
	return ok
}

// HasSubscriberForEvent reports whether posting a value of eventType would
// reach at least one handler.
func (b *Bus) HasSubscriberForEvent(eventType reflect.Type) bool {
	if eventType == nil {
		return false
	}
	return len(b.subscriptionsFor(eventType)) > 0
}

// subscriptionsFor returns the handlers for eventType in delivery order:
// handlers of the type itself first, then handlers of registered interfaces
// it implements in registration order.
func (b *Bus) subscriptionsFor(eventType reflect.Type) []*subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()

	direct := b.byEventType[eventType]
	if !b.cfg.EventInheritance || len(b.interfaces) == 0 {
		return direct
	}

	var out []*subscription
	for _, iface := range b.interfaces {
		if iface == eventType || !b.assignable(eventType, iface) {
			continue
		}
		if out == nil {
			out = append(make([]*subscription, 0, len(direct)), direct...)
		}
		out = append(out, b.byEventType[iface]...)
	}
	if out == nil {
		return direct
	}
	return out
}

// assignable reports whether an event of type from is delivered to handlers
// of type to.
func (b *Bus) assignable(from, to reflect.Type) bool {
	if from == to {
		return true
	}
	if to.Kind() != reflect.Interface {
		return false
	}
	return b.implements.GetOrCreate(typePair{from, to}, func() bool {
		return from.Implements(to)
	})
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	subs := 0
	for _, list := range b.bySubscriber {
		subs += len(list)
	}
	b.mu.RUnlock()

	return Stats{
		Posted:           b.posted.Load(),
		Delivered:        b.delivered.Load(),
		Unhandled:        b.unhandled.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
		Subscriptions:    subs,
		StickyEvents:     b.sticky.Len(),
		BackgroundQueued: len(b.background),
	}
}

// begin admits one unit of work unless the bus is closed.
// Callers must call b.inflight.Done when it returns true.
func (b *Bus) begin() bool {
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()
	if b.closed {
		return false
	}
	b.inflight.Add(1)
	return true
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.lifeMu.RLock()
	defer b.lifeMu.RUnlock()
	return b.closed
}

// Close stops accepting posts and registrations, waits for running posts,
// drains the Background queue, waits for Async deliveries, and closes the
// sticky store. Deliveries queued on the MainExecutor are not awaited.
//
// Close is idempotent. It must not be called from a handler.
func (b *Bus) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && b.cfg.CloseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.CloseTimeout)
		defer cancel()
	}

	b.closeOnce.Do(func() {
		b.lifeMu.Lock()
		b.closed = true
		b.lifeMu.Unlock()
		go b.shutdown()
	})

	select {
	case <-b.stopped:
		return b.closeErr
	case <-ctx.Done():
		return fmt.Errorf("close event bus: %w", ctx.Err())
	}
}

func (b *Bus) shutdown() {
	defer close(b.stopped)

	b.inflight.Wait()
	close(b.closing)
	<-b.bgDone
	_ = b.async.Wait()

	if b.cfg.StickyStore != nil {
		if err := b.cfg.StickyStore.Close(); err != nil {
			b.closeErr = fmt.Errorf("close sticky store: %w", err)
		}
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func withoutType(types []reflect.Type, t reflect.Type) []reflect.Type {
	out := make([]reflect.Type, 0, len(types))
	for _, existing := range types {
		if existing != t {
			out = append(out, existing)
		}
	}
	return out
}
