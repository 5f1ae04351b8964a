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

// TestFullProtection_ExpiredStampedeCallsLoaderOnce covers the store
// holding an envelope past its hard expiry, ten concurrent callers racing
// it, the loader sleeping 100ms, and the call being invoked exactly once
// across the whole fleet (single-flight + distributed lock stacked).
func TestFullProtection_ExpiredStampedeCallsLoaderOnce(t *testing.T) {
	store, _ := newTestStore(t)
	lock, err := NewLock(store, time.Second, WithLockRetryInterval(2*time.Millisecond))
	require.NoError(t, err)
	pool := newTestPool(t)
	strategy, err := NewFullProtection(store, lock, testConfig(), nil, nil, pool)
	require.NoError(t, err)

	ctx := context.Background()
	longAgo := time.Now().Add(-time.Hour)
	env := NewEnvelope(longAgo, []byte("ANCIENT"), 60*time.Second, 0, 0.8)
	encoded, err := EncodeEnvelope(env)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "product:full-protection:1", encoded, 0))

	var loaderCalls atomic.Int64
	loader := func(ctx context.Context) ([]byte, bool, error) {
		loaderCalls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return []byte("RELOADED"), true, nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([][]byte, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, found, err := strategy.GetOrLoad(context.Background(), "1", loader)
			errs[idx] = err
			if found {
				results[idx] = v
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("RELOADED"), results[i])
	}
	assert.Equal(t, int64(1), loaderCalls.Load())
}

// TestFullProtection_BackgroundRefreshSkipsWhenLockBusyByDefault verifies
// the default (WithRetryBackgroundOnLockBusy unset, defaults false): a
// background refresh that loses the distributed lock race gives up on this
// cycle rather than calling the loader itself.
func TestFullProtection_BackgroundRefreshSkipsWhenLockBusyByDefault(t *testing.T) {
	store, _ := newTestStore(t)
	lock, err := NewLock(store, 5*time.Second, WithLockRetryInterval(2*time.Millisecond))
	require.NoError(t, err)
	pool := newTestPool(t)
	cfg := testConfig()
	cfg.LockMaxRetries = 2
	cfg.LockRetryInterval = 2 * time.Millisecond
	strategy, err := NewFullProtection(store, lock, cfg, nil, nil, pool)
	require.NoError(t, err)

	ctx := context.Background()
	staleAt := time.Now().Add(-50 * time.Second)
	env := NewEnvelope(staleAt, []byte("STALE"), 60*time.Second, 0, 0.8)
	encoded, err := EncodeEnvelope(env)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "product:full-protection:busy", encoded, 0))

	unlock, ok, err := lock.TryLock(ctx, "refresh:full-protection:busy")
	require.NoError(t, err)
	require.True(t, ok)
	defer unlock(ctx)

	var loaderCalls atomic.Int64
	loader := func(ctx context.Context) ([]byte, bool, error) {
		loaderCalls.Add(1)
		return []byte("SHOULD_NOT_RUN"), true, nil
	}

	value, found, err := strategy.GetOrLoad(ctx, "busy", loader)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("STALE"), value)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), loaderCalls.Load())
}

// TestFullProtection_BackgroundRefreshRetriesWhenOptedIn verifies
// WithRetryBackgroundOnLockBusy(true): a background refresh that loses the
// lock race waits for the current holder to repopulate the cache and
// reports that repopulated value instead of giving up immediately.
func TestFullProtection_BackgroundRefreshRetriesWhenOptedIn(t *testing.T) {
	store, _ := newTestStore(t)
	lock, err := NewLock(store, 5*time.Second, WithLockRetryInterval(2*time.Millisecond))
	require.NoError(t, err)
	pool := newTestPool(t)
	cfg := testConfig()
	cfg.LockMaxRetries = 50
	cfg.LockRetryInterval = 2 * time.Millisecond
	strategy, err := NewFullProtection(store, lock, cfg, nil, nil, pool, WithRetryBackgroundOnLockBusy(true))
	require.NoError(t, err)

	ctx := context.Background()
	staleAt := time.Now().Add(-50 * time.Second)
	env := NewEnvelope(staleAt, []byte("STALE"), 60*time.Second, 0, 0.8)
	encoded, err := EncodeEnvelope(env)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "product:full-protection:retry", encoded, 0))

	unlock, ok, err := lock.TryLock(ctx, "refresh:full-protection:retry")
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(20 * time.Millisecond)
		fresh := NewEnvelope(time.Now(), []byte("REPOPULATED"), 60*time.Second, 0, 0.8)
		encodedFresh, err := EncodeEnvelope(fresh)
		require.NoError(t, err)
		require.NoError(t, store.Set(ctx, "product:full-protection:retry", encodedFresh, 0))
		_ = unlock(ctx)
	}()

	value, found, err := strategy.GetOrLoad(ctx, "retry", func(ctx context.Context) ([]byte, bool, error) {
		t.Fatal("background path must not call the loader when the opted-in wait succeeds")
		return nil, false, nil
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("STALE"), value)

	require.Eventually(t, func() bool {
		raw, getErr := store.Get(ctx, "product:full-protection:retry")
		if getErr != nil {
			return false
		}
		decoded, err := DecodeEnvelope[[]byte](raw)
		return err == nil && string(decoded.Value) == "REPOPULATED"
	}, time.Second, 5*time.Millisecond)
}
