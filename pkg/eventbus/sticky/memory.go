package sticky

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]storedRecord
	closed  bool
}

type storedRecord struct {
	data      []byte
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]storedRecord),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(typeName string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	m.records[typeName] = storedRecord{data: stored, updatedAt: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(typeName string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := m.records[typeName]
	if !ok {
		return nil, ErrNotFound
	}
	result := make([]byte, len(rec.data))
	copy(result, rec.data)
	return result, nil
}

// List implements Store.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.records))
	for name, rec := range m.records {
		infos = append(infos, Info{
			TypeName:  name,
			Size:      int64(len(rec.data)),
			UpdatedAt: rec.updatedAt,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].TypeName < infos[j].TypeName
	})
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(typeName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, typeName)
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	clear(m.records)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
