// Package sticky persists the latest sticky event of each event type so that
// a restarted process can replay them to newly registered subscribers.
package sticky

import (
	"errors"
	"time"
)

// Store persists encoded sticky events keyed by event type name.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save stores the record for typeName, replacing any previous one.
	Save(typeName string, data []byte) error

	// Load retrieves the record for typeName.
	// Returns ErrNotFound if none is stored.
	Load(typeName string) ([]byte, error)

	// List returns metadata for all stored records, ordered by type name.
	List() ([]Info, error)

	// Delete removes the record for typeName. Missing records are not an error.
	Delete(typeName string) error

	// Clear removes all records.
	Clear() error

	// Close releases any resources (connections, files).
	Close() error
}

// Info describes a stored record without loading it.
type Info struct {
	TypeName  string
	Size      int64
	UpdatedAt time.Time
}

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates no record is stored for a type.
	ErrNotFound = errors.New("sticky event not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("sticky store closed")

	// ErrTypeMismatch indicates a record was decoded as the wrong type.
	ErrTypeMismatch = errors.New("sticky event type mismatch")
)
