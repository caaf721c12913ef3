package subscriber

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Handler references one handler method.
//
// Owner is the type that declares the method. Func is the callable taken
// from the concrete subscriber's method set, so its first argument is the
// receiver. When a method is promoted from an embedded type, Owner names the
// embedded type while Func still belongs to the outer type.
type Handler struct {
	Owner        reflect.Type
	Name         string
	Func         reflect.Value
	TakesContext bool
	ReturnsError bool
}

// FromMethod builds a Handler from m, a method of a receiver type's method
// set, attributing it to owner. It also returns the event type the method
// accepts.
//
// Accepted shapes (receiver omitted):
//
//	func(E)
//	func(E) error
//	func(context.Context, E)
//	func(context.Context, E) error
func FromMethod(owner reflect.Type, m reflect.Method) (Handler, reflect.Type, error) {
	ft := m.Type
	if ft.IsVariadic() {
		return Handler{}, nil, fmt.Errorf("%w: %s is variadic", ErrIllegalSignature, m.Name)
	}

	h := Handler{
		Owner: baseType(owner),
		Name:  m.Name,
		Func:  m.Func,
	}

	var eventType reflect.Type
	switch ft.NumIn() - 1 {
	case 1:
		eventType = ft.In(1)
	case 2:
		if ft.In(1) != contextType {
			return Handler{}, nil, fmt.Errorf("%w: %s first parameter must be context.Context",
				ErrIllegalSignature, m.Name)
		}
		h.TakesContext = true
		eventType = ft.In(2)
	default:
		return Handler{}, nil, fmt.Errorf("%w: %s must accept exactly one event",
			ErrIllegalSignature, m.Name)
	}
	if eventType == contextType {
		return Handler{}, nil, fmt.Errorf("%w: %s has no event parameter", ErrIllegalSignature, m.Name)
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) != errorType {
			return Handler{}, nil, fmt.Errorf("%w: %s may only return error", ErrIllegalSignature, m.Name)
		}
		h.ReturnsError = true
	default:
		return Handler{}, nil, fmt.Errorf("%w: %s may only return error", ErrIllegalSignature, m.Name)
	}

	return h, eventType, nil
}

// HandlerOf looks up the method name on owner (value or pointer receiver)
// and builds a Handler declared by owner.
func HandlerOf(owner reflect.Type, name string) (Handler, reflect.Type, error) {
	if owner == nil {
		return Handler{}, nil, fmt.Errorf("%w: owner type is nil", ErrInvalidMethod)
	}
	base := baseType(owner)
	m, ok := reflect.PointerTo(base).MethodByName(name)
	if !ok {
		return Handler{}, nil, fmt.Errorf("%w: %s has no method %s", ErrInvalidMethod, TypeName(base), name)
	}
	return FromMethod(base, m)
}

// TypeName returns the canonical name used in identity keys: the package
// path qualified type name, with one "*" per pointer level.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		return "*" + TypeName(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

func baseType(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Pointer {
		return t.Elem()
	}
	return t
}
