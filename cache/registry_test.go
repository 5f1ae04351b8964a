package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, Store) {
	t.Helper()
	store, _ := newTestStore(t)
	lock, err := NewLock(store, time.Second)
	require.NoError(t, err)
	pool := newTestPool(t)
	registry, err := NewRegistry(RegistryOptions{
		Store:  store,
		Lock:   lock,
		Config: testConfig(),
		Pool:   pool,
	})
	require.NoError(t, err)
	return registry, store
}

func TestRegistry_BuildsEveryStrategyName(t *testing.T) {
	registry, _ := newTestRegistry(t)
	for _, name := range AllStrategyNames {
		s, ok := registry.Get(name)
		require.True(t, ok, "missing strategy %q", name)
		assert.Equal(t, name, s.Name())
	}
	assert.Len(t, registry.All(), len(AllStrategyNames))
}

func TestRegistry_UnknownNameNotFound(t *testing.T) {
	registry, _ := newTestRegistry(t)
	_, ok := registry.Get("does-not-exist")
	assert.False(t, ok)
}

// TestRegistry_NamespaceIsolation exercises namespace isolation through the
// registry: the same caller-supplied key written under one strategy must
// not be visible when read through another strategy.
func TestRegistry_NamespaceIsolation(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, name := range AllStrategyNames {
		s, ok := registry.Get(name)
		require.True(t, ok)
		value := []byte("value-for-" + name)
		v, found, err := s.GetOrLoad(ctx, "shared", func(ctx context.Context) ([]byte, bool, error) {
			return value, true, nil
		})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, value, v)
	}

	// Re-reading each strategy's entry must still return its own value, not
	// another strategy's, proving the namespaces never collided.
	for _, name := range AllStrategyNames {
		s, ok := registry.Get(name)
		require.True(t, ok)
		expected := []byte("value-for-" + name)
		v, found, err := s.GetOrLoad(ctx, "shared", func(ctx context.Context) ([]byte, bool, error) {
			t.Fatalf("loader should not be called for strategy %q on a hit", name)
			return nil, false, nil
		})
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, expected, v)
	}
}

// TestRegistry_InvalidateFanOutIsIdempotent verifies invalidating the same
// key across every registered strategy twice in a row must not error.
func TestRegistry_InvalidateFanOutIsIdempotent(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	for _, s := range registry.All() {
		_, _, err := s.GetOrLoad(ctx, "k", func(ctx context.Context) ([]byte, bool, error) {
			return []byte("V"), true, nil
		})
		require.NoError(t, err)
	}

	for pass := 0; pass < 2; pass++ {
		for _, s := range registry.All() {
			require.NoError(t, s.Invalidate(ctx, "k"))
		}
	}
}

func TestNewRegistry_RequiresLockAndPool(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := NewRegistry(RegistryOptions{Store: store})
	assert.Error(t, err)

	lock, err := NewLock(store, time.Second)
	require.NoError(t, err)
	_, err = NewRegistry(RegistryOptions{Store: store, Lock: lock})
	assert.Error(t, err)
}
