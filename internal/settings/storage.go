package settings

import (
	"context"
	"sync"
)

// Storage is a read-only view over a string key-value store.
type Storage interface {
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
}

type availability interface {
	Available() bool
}

// Available reports whether s is backed by real storage.
func Available(s Storage) bool {
	if s == nil {
		return false
	}
	if a, ok := s.(availability); ok {
		return a.Available()
	}
	return true
}

// Unavailable is the storage used when the host offers no persistent store.
type Unavailable struct{}

// GetItem always reports the key as absent.
func (Unavailable) GetItem(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// Available reports false.
func (Unavailable) Available() bool { return false }

// Memory is an in-process store, mainly for tests and embedding.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns a Memory store seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// GetItem returns the value stored under key.
func (m *Memory) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	val, ok := m.values[key]
	return val, ok, nil
}

// SetItem stores value under key.
func (m *Memory) SetItem(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}
