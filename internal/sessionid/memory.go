package sessionid

import (
	"context"
	"sync"
)

// MemoryStorage is a process-local Storage. Every Store sharing it sees the
// others' writes through Watch.
type MemoryStorage struct {
	mu       sync.RWMutex
	values   map[string]string
	watchers map[int]func(Change)
	nextID   int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:   make(map[string]string),
		watchers: make(map[int]func(Change)),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	m.notify(Change{Key: key, Value: value})
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	_, existed := m.values[key]
	delete(m.values, key)
	m.mu.Unlock()
	if existed {
		m.notify(Change{Key: key, Deleted: true})
	}
	return nil
}

func (m *MemoryStorage) Watch(fn func(Change)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

func (m *MemoryStorage) notify(c Change) {
	m.mu.RLock()
	watchers := make([]func(Change), 0, len(m.watchers))
	for _, fn := range m.watchers {
		watchers = append(watchers, fn)
	}
	m.mu.RUnlock()

	for _, fn := range watchers {
		fn(c)
	}
}
