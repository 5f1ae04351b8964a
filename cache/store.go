package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
)

// Store is the remote key-value store every strategy is built against.
// Implementations must map a backend-specific not-found signal to
// ErrKeyNotFound, and must never return ErrKeyNotFound for any reason
// other than "this key is absent."
type Store interface {
	// Get returns the raw bytes stored at key, or ErrKeyNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value at key with the given TTL. A zero TTL means "use the
	// backend's default" and is never used by the strategies in this
	// package, which always compute an explicit TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetIfAbsent writes value at key only if key does not already exist,
	// returning whether the write happened. It is the store-level primitive
	// the lock is built on; the strategies do not call it directly.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// =============================================================================
// RedisStore
// =============================================================================

// RedisStore implements Store against a redis.UniversalClient. This is the
// production backend: every strategy's distributed-lock guarantees depend
// on a store shared across the whole fleet, which only a real remote store
// provides.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore builds a RedisStore. client must be non-nil and already
// configured (address, auth, TLS) by the caller — this package never owns
// connection lifecycle beyond Close.
func NewRedisStore(client redis.UniversalClient) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get %q: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %q: %w", key, err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

// unlockScript atomically deletes key only if its current value still
// equals token — a compare-and-delete, so a holder can never release a
// lock it no longer owns.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// CompareDelete deletes key only if its value equals token, returning
// whether the delete happened. Lock uses this — via the compareDeleter
// interface upgrade in lock.go — to release a RedisStore-backed lock
// atomically instead of the Get-then-Delete fallback every other Store
// implementation is left with.
func (s *RedisStore) CompareDelete(ctx context.Context, key, token string) (bool, error) {
	n, err := unlockScript.Run(ctx, s.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("redis unlock %q: %w", key, err)
	}
	return n == 1, nil
}

// Client exposes the underlying redis.UniversalClient rather than fully
// hiding the driver behind the wrapper, for callers that need the raw
// client for operational commands. The lock does not use it: its unlock
// script runs through CompareDelete.
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

// =============================================================================
// MemoryStore
// =============================================================================

// MemoryStore implements Store over an in-process ristretto cache. It is
// the local/dev backend: running the demo server or the test suite against
// it needs no Redis, at the cost of every strategy's distributed-lock
// guarantee degrading to "single process" — there is only ever one
// holder's worth of memory to race over.
type MemoryStore struct {
	client *ristretto.Cache[string, []byte]
}

// MemoryStoreOptions configures the underlying ristretto cache.
type MemoryStoreOptions struct {
	// NumCounters sets ristretto's admission-counter width; ristretto's own
	// docs recommend roughly 10x the expected number of distinct keys.
	NumCounters int64
	// MaxCost bounds the cache's accounted cost (here, approximately bytes).
	MaxCost int64
	// BufferItems sizes ristretto's internal Get buffers.
	BufferItems int64
}

func defaultMemoryStoreOptions() MemoryStoreOptions {
	return MemoryStoreOptions{
		NumCounters: 1e6,
		MaxCost:     32 << 20,
		BufferItems: 64,
	}
}

// NewMemoryStore builds a MemoryStore with the given options, falling back
// to defaultMemoryStoreOptions() for any zero field.
func NewMemoryStore(opts MemoryStoreOptions) (*MemoryStore, error) {
	defaults := defaultMemoryStoreOptions()
	if opts.NumCounters <= 0 {
		opts.NumCounters = defaults.NumCounters
	}
	if opts.MaxCost <= 0 {
		opts.MaxCost = defaults.MaxCost
	}
	if opts.BufferItems <= 0 {
		opts.BufferItems = defaults.BufferItems
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: opts.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: build ristretto cache: %w", err)
	}
	return &MemoryStore{client: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := s.client.Get(key)
	if !ok {
		return nil, ErrKeyNotFound
	}
	// ristretto hands back the slice it stores internally; copy so a caller
	// mutating the returned bytes can't corrupt the cached entry.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.client.SetWithTTL(key, value, int64(len(value)), ttl)
	s.client.Wait()
	return nil
}

func (s *MemoryStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok := s.client.Get(key); ok {
		return false, nil
	}
	// ristretto has no atomic set-if-absent; this check-then-set is the
	// single-process best effort the in-memory backend offers (its lock
	// guarantee is intra-process only, see the type doc above).
	if err := s.Set(ctx, key, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.client.Del(key)
	return nil
}

// Client exposes the underlying ristretto cache for operational use (stats,
// manual eviction) without forcing every caller through the Store interface.
func (s *MemoryStore) Client() *ristretto.Cache[string, []byte] {
	return s.client
}

// Close releases the ristretto cache's background goroutines.
func (s *MemoryStore) Close() error {
	s.client.Close()
	return nil
}
