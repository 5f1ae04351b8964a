package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a RedisStore backed by an in-process miniredis
// instance, following the example pack's own test-setup convention.
func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	store, err := NewRedisStore(client)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return store, mr
}

// newTestRedisClient builds a bare go-redis client over an in-process
// miniredis instance, for components (like RedlockFactory) that need the
// raw client rather than a Store wrapper.
func newTestRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr:         mr.Addr(),
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return client, mr
}

func testConfig() Config {
	return Config{
		BaseTTL:           60 * time.Second,
		JitterMax:         10 * time.Second,
		SoftTTLRatio:      0.8,
		LockTimeout:       5 * time.Second,
		LockRetryInterval: 10 * time.Millisecond,
		LockMaxRetries:    100,
	}
}
