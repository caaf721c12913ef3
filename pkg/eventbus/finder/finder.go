// Package finder discovers handler methods on subscriber types.
//
// A subscriber is a pointer to a struct. Its handlers are either the methods
// listed by its Bindings (see subscriber.Binder) or, when it has none, every
// exported method whose name starts with the configured prefix ("On" by
// default). Embedded structs are searched too: a method promoted from an
// embedded type is attributed to the type that declares it, and a method the
// outer type redeclares shadows the embedded one.
package finder

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"

	"github.com/randalmurphal/eventbus/pkg/eventbus/registry"
	"github.com/randalmurphal/eventbus/pkg/eventbus/subscriber"
)

// DefaultPrefix is the method name prefix used when a type has no bindings.
const DefaultPrefix = "On"

// Sentinel errors for discovery.
var (
	// ErrInvalidSubscriber indicates the subscriber is not a pointer to a struct.
	ErrInvalidSubscriber = errors.New("subscriber must be a pointer to a struct")

	// ErrNoHandlers indicates a subscriber type declares no handler methods.
	ErrNoHandlers = errors.New("subscriber has no handler methods")

	// ErrIllegalHandler indicates a declared handler cannot be bound.
	ErrIllegalHandler = errors.New("illegal handler method")
)

var binderType = reflect.TypeOf((*subscriber.Binder)(nil)).Elem()

// Finder discovers and caches handler descriptors per subscriber type.
// It is safe for concurrent use.
type Finder struct {
	prefix string
	strict bool
	logger *slog.Logger
	cache  *registry.Registry[reflect.Type, []*subscriber.Method]
}

// Option configures a Finder.
type Option func(*Finder)

// WithPrefix sets the method name prefix for types without bindings.
func WithPrefix(prefix string) Option {
	return func(f *Finder) {
		f.prefix = prefix
	}
}

// WithStrict makes prefixed methods with an unusable signature an error
// instead of being skipped.
func WithStrict(strict bool) Option {
	return func(f *Finder) {
		f.strict = strict
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Finder) {
		f.logger = logger
	}
}

// New creates a Finder.
func New(opts ...Option) *Finder {
	f := &Finder{
		prefix: DefaultPrefix,
		logger: slog.Default(),
		cache:  registry.New[reflect.Type, []*subscriber.Method](),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.New(slog.DiscardHandler)
	}
	return f
}

// Find returns the handler descriptors of subscriberType, a pointer to a
// struct type. Results are cached; errors are not.
//
// The returned slice is shared and must not be modified.
func (f *Finder) Find(subscriberType reflect.Type) ([]*subscriber.Method, error) {
	if methods, ok := f.cache.Get(subscriberType); ok {
		return methods, nil
	}

	methods, err := f.find(subscriberType)
	if err != nil {
		return nil, err
	}

	methods, _ = f.cache.RegisterIfAbsent(subscriberType, methods)
	return methods, nil
}

// ClearCache drops all cached discovery results.
func (f *Finder) ClearCache() {
	f.cache.Clear()
}

// candidates decides which method names of a type may be handlers.
type candidates struct {
	prefix   string
	bindings map[string]subscriber.Binding
	unused   map[string]struct{}
}

func (c *candidates) lookup(name string) (subscriber.Binding, bool) {
	if c.bindings != nil {
		b, ok := c.bindings[name]
		return b, ok
	}
	if strings.HasPrefix(name, c.prefix) {
		return subscriber.Binding{Method: name}, true
	}
	return subscriber.Binding{}, false
}

func (c *candidates) explicit() bool {
	return c.bindings != nil
}

func (f *Finder) find(t reflect.Type) ([]*subscriber.Method, error) {
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidSubscriber, subscriber.TypeName(t))
	}

	cands, err := f.candidatesFor(t)
	if err != nil {
		return nil, err
	}

	var (
		methods []*subscriber.Method
		seen    = make(map[string]struct{})
		visited = map[reflect.Type]bool{t.Elem(): true}
		levels  = []reflect.Type{t.Elem()}
	)

	for len(levels) > 0 {
		level := levels[0]
		levels = levels[1:]

		ptr := reflect.PointerTo(level)
		for i := 0; i < ptr.NumMethod(); i++ {
			name := ptr.Method(i).Name
			binding, ok := cands.lookup(name)
			if !ok || !declaredOn(level, name) {
				continue
			}

			// The callable always comes from the concrete type so that a
			// redeclared method on an outer type is the one invoked.
			callable, ok := t.MethodByName(name)
			if !ok {
				f.logger.Debug("handler not reachable from subscriber",
					slog.String("subscriber", subscriber.TypeName(t)),
					slog.String("method", name),
				)
				continue
			}

			h, eventType, err := subscriber.FromMethod(level, callable)
			if err != nil {
				if f.strict || cands.explicit() {
					return nil, fmt.Errorf("%w: %s.%s: %w", ErrIllegalHandler, subscriber.TypeName(level), name, err)
				}
				f.logger.Debug("skipping method with unusable signature",
					slog.String("subscriber", subscriber.TypeName(t)),
					slog.String("method", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			delete(cands.unused, name)

			key := name + ">" + subscriber.TypeName(eventType)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			m, err := subscriber.NewMethod(h, eventType, binding.Mode, binding.Priority, binding.Sticky)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrIllegalHandler, subscriber.TypeName(level), name, err)
			}
			methods = append(methods, m)
		}

		for _, embedded := range embeddedStructs(level) {
			if !visited[embedded] {
				visited[embedded] = true
				levels = append(levels, embedded)
			}
		}
	}

	if len(cands.unused) > 0 {
		names := make([]string, 0, len(cands.unused))
		for name := range cands.unused {
			names = append(names, name)
		}
		return nil, fmt.Errorf("%w: %s binds unknown methods %v", ErrIllegalHandler, subscriber.TypeName(t), names)
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHandlers, subscriber.TypeName(t))
	}
	return methods, nil
}

func (f *Finder) candidatesFor(t reflect.Type) (*candidates, error) {
	c := &candidates{prefix: f.prefix}
	if !t.Implements(binderType) {
		return c, nil
	}

	bindings := reflect.New(t.Elem()).Interface().(subscriber.Binder).Bindings()
	c.bindings = make(map[string]subscriber.Binding, len(bindings))
	c.unused = make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if b.Method == "" {
			return nil, fmt.Errorf("%w: %s has a binding without a method name", ErrIllegalHandler, subscriber.TypeName(t))
		}
		if _, dup := c.bindings[b.Method]; dup {
			return nil, fmt.Errorf("%w: %s binds %s twice", ErrIllegalHandler, subscriber.TypeName(t), b.Method)
		}
		c.bindings[b.Method] = b
		c.unused[b.Method] = struct{}{}
	}
	return c, nil
}

// embeddedStructs returns the struct types embedded directly in t.
func embeddedStructs(t reflect.Type) []reflect.Type {
	var out []reflect.Type
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.Anonymous {
			continue
		}
		ft := field.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			out = append(out, ft)
		}
	}
	return out
}

// declaredOn reports whether the method name of struct type t is declared
// by t itself rather than promoted from an embedded struct.
func declaredOn(t reflect.Type, name string) bool {
	for _, embedded := range embeddedStructs(t) {
		if _, ok := reflect.PointerTo(embedded).MethodByName(name); ok {
			// Both t and an embedded type have the method: t either
			// redeclares it or merely promotes it.
			return !isPromotionWrapper(t, name)
		}
	}
	return true
}

// autogeneratedFile is the file the runtime reports for compiler-generated
// method wrappers, which is what promoted methods are.
const autogeneratedFile = "<autogenerated>"

func isPromotionWrapper(t reflect.Type, name string) bool {
	for _, typ := range [...]reflect.Type{t, reflect.PointerTo(t)} {
		m, ok := typ.MethodByName(name)
		if !ok {
			continue
		}
		pc := m.Func.Pointer()
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		if file, _ := fn.FileLine(pc); file != autogeneratedFile {
			return false
		}
	}
	return true
}
