package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager hands out per-session Stores keyed by an opaque session token.
// Each token maps to exactly one Store, so the single-writer contract holds
// per session even when requests arrive on different connections.
type Manager struct {
	newStore func(token string) *Store
	idleTTL  time.Duration

	mu     sync.Mutex
	stores map[string]*managedStore
}

// managedStore tracks when a Store was last handed out.
type managedStore struct {
	store    *Store
	lastSeen time.Time
}

const defaultIdleTTL = time.Hour

// NewManager creates a Manager. newStore builds the Store for a token,
// typically binding a token-scoped IDStore. Stores are evicted after an hour
// of inactivity; the cart id stays persisted, so an evicted session is
// rebuilt and restored on its next request.
func NewManager(newStore func(token string) *Store) *Manager {
	return &Manager{
		newStore: newStore,
		idleTTL:  defaultIdleTTL,
		stores:   make(map[string]*managedStore),
	}
}

// NewToken mints a fresh opaque session token.
func (m *Manager) NewToken() string {
	return uuid.New().String()
}

// Get returns the Store for token, creating it on first use.
func (m *Manager) Get(token string) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.stores[token]
	if !ok {
		e = &managedStore{store: m.newStore(token)}
		m.stores[token] = e
	}
	e.lastSeen = time.Now()
	return e.store
}

// evictIdle removes stores not seen since before the idle TTL. Stores with
// work in flight are skipped and picked up on a later sweep.
func (m *Manager) evictIdle(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for token, e := range m.stores {
		if now.Sub(e.lastSeen) < m.idleTTL {
			continue
		}
		switch e.store.State() {
		case StateRestoring, StateMutating:
			continue
		}
		delete(m.stores, token)
	}
}

// StartCleanup launches a background goroutine that periodically evicts idle
// stores. It stops when ctx is cancelled.
func (m *Manager) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.idleTTL / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.evictIdle(now)
			}
		}
	}()
}
