package subscriber

import "errors"

// Sentinel errors for descriptor construction and invocation.
var (
	// ErrInvalidMethod indicates a descriptor was built from incomplete input.
	// It is always wrapped with the name of the missing field.
	ErrInvalidMethod = errors.New("invalid subscriber method")

	// ErrNotInvocable indicates the handler has no callable function attached.
	ErrNotInvocable = errors.New("handler is not invocable")

	// ErrIllegalSignature indicates a method cannot serve as a handler.
	ErrIllegalSignature = errors.New("illegal handler signature")
)
