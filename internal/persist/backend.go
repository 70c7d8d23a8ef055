// Package persist is a key/value store for rule state. Values are scalars
// or tracked objects: structured values that remember every (store, key)
// holding them, so an in-place field write re-persists the whole root.
package persist

import (
	"context"
	"sync"
)

// Backend stores encoded values by (store, key).
type Backend interface {
	Get(ctx context.Context, store, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, store, key string, value []byte) error
}

// MemoryBackend keeps values in memory. Used by tests and when no storage
// is configured.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, store, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[store][key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryBackend) Put(_ context.Context, store, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[store]
	if !ok {
		s = make(map[string][]byte)
		m.data[store] = s
	}
	v := make([]byte, len(value))
	copy(v, value)
	s[key] = v
	return nil
}
