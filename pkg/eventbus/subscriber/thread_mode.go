package subscriber

import (
	"fmt"
	"strings"
)

// ThreadMode selects the execution context a handler is delivered on.
// The descriptor only stores and compares it; the bus interprets it.
type ThreadMode int

const (
	// Posting delivers on the goroutine that called Post.
	Posting ThreadMode = iota

	// Main delivers through the bus's main executor, or inline if none is set.
	Main

	// MainOrdered is like Main but always queues, so delivery never
	// happens before Post returns when an executor is configured.
	MainOrdered

	// Background delivers on the bus's single background goroutine.
	// Deliveries are serialized in post order.
	//
	// A Background handler that posts must pass the context it was given.
	// Background deliveries posted with that context run inline. Posted with
	// any other context they wait for queue space, which only the
	// background goroutine frees, so once the queue is full the handler
	// blocks until that context is done or the bus closes.
	Background

	// Async delivers on a separate goroutine per event.
	Async
)

// String returns the mode name.
func (m ThreadMode) String() string {
	switch m {
	case Posting:
		return "posting"
	case Main:
		return "main"
	case MainOrdered:
		return "main_ordered"
	case Background:
		return "background"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the defined modes.
func (m ThreadMode) Valid() bool {
	return m >= Posting && m <= Async
}

// UnmarshalText lets ThreadMode be decoded from configuration files.
func (m *ThreadMode) UnmarshalText(text []byte) error {
	parsed, err := ParseThreadMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText encodes the mode name.
func (m ThreadMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseThreadMode parses a mode name as produced by String.
// Matching is case-insensitive and accepts "-" in place of "_".
func ParseThreadMode(s string) (ThreadMode, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_") {
	case "", "posting":
		return Posting, nil
	case "main":
		return Main, nil
	case "main_ordered":
		return MainOrdered, nil
	case "background":
		return Background, nil
	case "async":
		return Async, nil
	}
	return Posting, fmt.Errorf("unknown thread mode %q", s)
}
