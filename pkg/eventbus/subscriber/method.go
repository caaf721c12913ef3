// Package subscriber describes handler bindings: which method of a subscriber
// type consumes which event type, on which thread mode, at which priority,
// and whether it wants sticky replay on registration.
package subscriber

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Method describes one handler binding. It is immutable after construction
// apart from the identity key, which is computed once on first use.
//
// Two Methods are equal when their identity keys are equal. The key is
// built from the declaring type, the method name and the event type, so the
// same handler discovered through an embedding type and through the type
// that declares it compares equal.
type Method struct {
	handler   Handler
	eventType reflect.Type
	mode      ThreadMode
	priority  int
	sticky    bool

	keyOnce sync.Once
	key     string
}

// NewMethod creates a descriptor. The owner type is taken from h.
// Missing required input is reported as ErrInvalidMethod.
func NewMethod(h Handler, eventType reflect.Type, mode ThreadMode, priority int, sticky bool) (*Method, error) {
	switch {
	case h.Owner == nil:
		return nil, fmt.Errorf("%w: handler owner type is nil", ErrInvalidMethod)
	case h.Name == "":
		return nil, fmt.Errorf("%w: handler name is empty", ErrInvalidMethod)
	case eventType == nil:
		return nil, fmt.Errorf("%w: event type is nil", ErrInvalidMethod)
	case !mode.Valid():
		return nil, fmt.Errorf("%w: thread mode %d", ErrInvalidMethod, int(mode))
	}
	h.Owner = baseType(h.Owner)
	return &Method{
		handler:   h,
		eventType: eventType,
		mode:      mode,
		priority:  priority,
		sticky:    sticky,
	}, nil
}

// Owner returns the type that declares the handler method.
func (m *Method) Owner() reflect.Type { return m.handler.Owner }

// Handler returns the handler reference.
func (m *Method) Handler() Handler { return m.handler }

// Name returns the handler method name.
func (m *Method) Name() string { return m.handler.Name }

// EventType returns the exact type of the event parameter.
func (m *Method) EventType() reflect.Type { return m.eventType }

// Mode returns the thread mode.
func (m *Method) Mode() ThreadMode { return m.mode }

// Priority returns the delivery priority. Higher runs first.
func (m *Method) Priority() int { return m.priority }

// Sticky reports whether the handler wants the cached sticky event on registration.
func (m *Method) Sticky() bool { return m.sticky }

// IdentityKey returns "owner#name(event", computing it on first call.
// Concurrent callers block until the single computation finishes and all
// observe the same string.
func (m *Method) IdentityKey() string {
	m.keyOnce.Do(func() {
		owner := TypeName(m.handler.Owner)
		event := TypeName(m.eventType)

		var b strings.Builder
		b.Grow(len(owner) + len(m.handler.Name) + len(event) + 2)
		b.WriteString(owner)
		b.WriteByte('#')
		b.WriteString(m.handler.Name)
		b.WriteByte('(')
		b.WriteString(event)
		m.key = b.String()
	})
	return m.key
}

// Equal reports whether other is a *Method with the same identity key.
// Mode, priority and sticky do not participate.
func (m *Method) Equal(other any) bool {
	o, ok := other.(*Method)
	if !ok || m == nil || o == nil {
		return ok && m == o
	}
	if m == o {
		return true
	}
	return m.IdentityKey() == o.IdentityKey()
}

// Hash returns a hash of the identity key, consistent with Equal.
func (m *Method) Hash() uint64 {
	return xxhash.Sum64String(m.IdentityKey())
}

// String returns the identity key.
func (m *Method) String() string {
	return m.IdentityKey()
}

// Invoke calls the handler on receiver with event. A nil event is passed as
// the zero value of the event type. A non-nil error returned by the handler
// is passed through unchanged.
func (m *Method) Invoke(ctx context.Context, receiver, event any) error {
	fn := m.handler.Func
	if !fn.IsValid() {
		return fmt.Errorf("%w: %s", ErrNotInvocable, m.IdentityKey())
	}
	if ctx == nil {
		ctx = context.Background()
	}

	args := make([]reflect.Value, 0, 3)
	args = append(args, reflect.ValueOf(receiver))
	if m.handler.TakesContext {
		args = append(args, reflect.ValueOf(&ctx).Elem())
	}
	ev := reflect.ValueOf(event)
	if !ev.IsValid() {
		ev = reflect.Zero(m.eventType)
	}
	args = append(args, ev)

	out := fn.Call(args)
	if m.handler.ReturnsError && len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
