package sticky

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Version is the current record format version.
const Version = 1

// Record is the persisted form of one sticky event.
type Record struct {
	Version  int             `json:"version"`
	TypeName string          `json:"type"`
	SavedAt  time.Time       `json:"saved_at"`
	Payload  json.RawMessage `json:"payload"`
}

// Encode wraps event in a Record and serializes it.
func Encode(typeName string, event any) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typeName, err)
	}
	return json.Marshal(Record{
		Version:  Version,
		TypeName: typeName,
		SavedAt:  time.Now().UTC(),
		Payload:  payload,
	})
}

// Decode parses a Record and decodes its payload as a value of type t.
// Pointer types decode to a freshly allocated pointer.
func Decode(data []byte, typeName string, t reflect.Type) (any, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", typeName, err)
	}
	if rec.Version != Version {
		return nil, fmt.Errorf("decode %s: unsupported record version %d", typeName, rec.Version)
	}
	if rec.TypeName != typeName {
		return nil, fmt.Errorf("%w: stored %s, want %s", ErrTypeMismatch, rec.TypeName, typeName)
	}

	target := t
	if t.Kind() == reflect.Pointer {
		target = t.Elem()
	}
	v := reflect.New(target)
	if err := json.Unmarshal(rec.Payload, v.Interface()); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", typeName, err)
	}
	if t.Kind() == reflect.Pointer {
		return v.Interface(), nil
	}
	return v.Elem().Interface(), nil
}
