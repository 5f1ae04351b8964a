package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alwaysFailStore is a Store whose every operation fails, used to drive a
// BreakerStore's breaker open without needing a real flaky backend.
type alwaysFailStore struct {
	err error
}

func (s *alwaysFailStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, s.err
}

func (s *alwaysFailStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.err
}

func (s *alwaysFailStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return false, s.err
}

func (s *alwaysFailStore) Delete(ctx context.Context, key string) error {
	return s.err
}

func TestBreakerStore_PassesThroughOnHealthyStore(t *testing.T) {
	store, _ := newTestStore(t)
	bs, err := NewBreakerStore(store, BreakerStoreOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, bs.Set(ctx, "k", []byte("v"), time.Minute))
	v, err := bs.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, bs.Delete(ctx, "k"))
}

// TestBreakerStore_OpensAfterConsecutiveFailures drives five consecutive
// failing Get calls (the default ReadyToTrip threshold) and verifies the
// sixth call fails fast with ErrStoreUnavailable rather than the raw
// underlying error.
func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	underlying := errors.New("connection refused")
	failing := &alwaysFailStore{err: underlying}
	bs, err := NewBreakerStore(failing, BreakerStoreOptions{Name: "t", Timeout: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := bs.Get(ctx, "k")
		require.Error(t, err)
	}

	_, err = bs.Get(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestBreakerStore_CompareDeleteForwardsWhenSupported(t *testing.T) {
	store, _ := newTestStore(t)
	bs, err := NewBreakerStore(store, BreakerStoreOptions{})
	require.NoError(t, err)

	ctx := context.Background()
	lock, err := NewLock(store, time.Second)
	require.NoError(t, err)
	unlock, ok, err := lock.TryLock(ctx, "res")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, unlock(ctx))

	_, err = bs.CompareDelete(ctx, "lock:refresh:res", "anything")
	require.NoError(t, err)
}

func TestBreakerStore_CompareDeleteFailsWhenUnsupported(t *testing.T) {
	failing := &alwaysFailStore{err: errors.New("boom")}
	bs, err := NewBreakerStore(failing, BreakerStoreOptions{})
	require.NoError(t, err)

	_, err = bs.CompareDelete(context.Background(), "k", "tok")
	assert.Error(t, err)
}
