package store

import (
	"context"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory keeps credentials for the lifetime of the process.
type Memory struct {
	values map[string]string
	lock   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
	}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.values, key)
	return nil
}
