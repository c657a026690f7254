package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packon/storefront/internal/cart"
)

func newTestManager(remote Commerce) *Manager {
	return NewManager(func(string) *Store {
		return New(remote, NewMemoryIDStore())
	})
}

func TestManager_GetIsStablePerToken(t *testing.T) {
	m := newTestManager(&mockCommerce{})

	a := m.Get("alice")
	assert.Same(t, a, m.Get("alice"))
	assert.NotSame(t, a, m.Get("bob"))
}

func TestManager_NewTokenIsUnique(t *testing.T) {
	m := newTestManager(&mockCommerce{})
	assert.NotEqual(t, m.NewToken(), m.NewToken())
}

func TestManager_EvictsIdleStores(t *testing.T) {
	m := newTestManager(&mockCommerce{})

	a := m.Get("alice")

	// A sweep before the idle TTL keeps the store.
	m.evictIdle(time.Now())
	assert.Same(t, a, m.Get("alice"))

	// After the TTL the store is dropped and rebuilt on next use.
	m.evictIdle(time.Now().Add(2 * defaultIdleTTL))
	assert.NotSame(t, a, m.Get("alice"))
}

func TestManager_EvictionSkipsBusyStores(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	remote := &mockCommerce{
		CreateFunc: func(ctx context.Context) (*cart.Cart, error) {
			close(entered)
			<-release
			return &cart.Cart{ID: "gid://cart/1"}, nil
		},
		AddLinesFunc: func(ctx context.Context, id string, lines []cart.LineInput) (*cart.Cart, error) {
			return &cart.Cart{ID: "gid://cart/1", TotalQuantity: 1}, nil
		},
	}
	m := newTestManager(remote)
	s := m.Get("alice")

	done := make(chan error, 1)
	go func() {
		done <- s.AddItem(context.Background(), "gid://variant/1", 1)
	}()

	<-entered
	m.evictIdle(time.Now().Add(2 * defaultIdleTTL))
	assert.Same(t, s, m.Get("alice"), "a store with work in flight must survive the sweep")

	close(release)
	require.NoError(t, <-done)
}
