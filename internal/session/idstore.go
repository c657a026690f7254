package session

import (
	"context"
	"sync"
)

// MemoryIDStore is an in-process IDStore for tests and ephemeral sessions.
type MemoryIDStore struct {
	mu sync.Mutex
	id string
}

// NewMemoryIDStore creates an empty MemoryIDStore.
func NewMemoryIDStore() *MemoryIDStore {
	return &MemoryIDStore{}
}

func (m *MemoryIDStore) Save(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	return nil
}

func (m *MemoryIDStore) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryIDStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}
