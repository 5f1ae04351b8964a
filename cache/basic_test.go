package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBasic_ColdHit starts from an empty store; the loader returns "V"
// once, and the store ends up holding product:basic:1 -> "V" with TTL=60s.
func TestBasic_ColdHit(t *testing.T) {
	store, mr := newTestStore(t)
	strategy, err := NewBasic(store, testConfig(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	loaderCalls := 0
	loader := func(ctx context.Context) ([]byte, bool, error) {
		loaderCalls++
		return []byte("V"), true, nil
	}

	value, found, err := strategy.GetOrLoad(ctx, "1", loader)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("V"), value)
	assert.Equal(t, 1, loaderCalls)

	assert.True(t, mr.Exists("product:basic:1"))
	ttl := mr.TTL("product:basic:1")
	assert.InDelta(t, 60, ttl.Seconds(), 1)
}

// TestBasic_NotFoundTransparency is P3: if loader returns not-found and no
// prior entry exists, GetOrLoad returns not-found and nothing is written.
func TestBasic_NotFoundTransparency(t *testing.T) {
	store, mr := newTestStore(t)
	strategy, err := NewBasic(store, testConfig(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	loader := func(ctx context.Context) ([]byte, bool, error) {
		return nil, false, nil
	}

	value, found, err := strategy.GetOrLoad(ctx, "missing", loader)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
	assert.False(t, mr.Exists("product:basic:missing"))
}

// TestBasic_BurstYieldsUpToNLoaderCalls documents Basic's explicit lack of
// stampede protection: a burst of concurrent misses can yield more than one
// loader call (at most one per caller), unlike JitterLock's
// single-invocation guarantee.
func TestBasic_BurstYieldsUpToNLoaderCalls(t *testing.T) {
	store, _ := newTestStore(t)
	strategy, err := NewBasic(store, testConfig(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	var loaderCalls atomic.Int64
	loader := func(ctx context.Context) ([]byte, bool, error) {
		loaderCalls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return []byte("V"), true, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, found, err := strategy.GetOrLoad(ctx, "burst", loader)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, []byte("V"), value)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, loaderCalls.Load(), int64(1))
	assert.LessOrEqual(t, loaderCalls.Load(), int64(callers))
}

func TestBasic_Invalidate_IsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	strategy, err := NewBasic(store, testConfig(), nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, _, err = strategy.GetOrLoad(ctx, "k", func(ctx context.Context) ([]byte, bool, error) {
		return []byte("V"), true, nil
	})
	require.NoError(t, err)

	require.NoError(t, strategy.Invalidate(ctx, "k"))
	require.NoError(t, strategy.Invalidate(ctx, "k"))
}
