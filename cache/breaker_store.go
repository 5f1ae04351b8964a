package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerStore wraps a Store with a circuit breaker around each operation.
// Under a sustained remote-store outage, every call fails fast with
// ErrStoreUnavailable instead of blocking on a timeout per request — but the
// error-handling contract does not change: ErrStoreUnavailable is a
// transient remote-store failure exactly like a raw transport error, so
// every strategy already treats it as a miss on read and a silent drop on
// write.
type BreakerStore struct {
	inner Store

	get func(ctx context.Context, key string) ([]byte, error)
	set func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	sia func(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	del func(ctx context.Context, key string) error
}

// BreakerStoreOptions configures the gobreaker.Settings shared by every
// operation's breaker. Zero values fall back to gobreaker's own defaults
// except Timeout, which defaults to 10s here (gobreaker's default of 60s is
// far longer than any cache operation should ever legitimately take).
type BreakerStoreOptions struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// ReadyToTrip decides when the breaker opens. Defaults to tripping after
	// 5 consecutive failures.
	ReadyToTrip func(counts gobreaker.Counts) bool
}

func defaultReadyToTrip(counts gobreaker.Counts) bool {
	return counts.ConsecutiveFailures >= 5
}

// NewBreakerStore wraps store with a circuit breaker per operation.
func NewBreakerStore(store Store, opts BreakerStoreOptions) (*BreakerStore, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if opts.Name == "" {
		opts.Name = "cache-store"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ReadyToTrip == nil {
		opts.ReadyToTrip = defaultReadyToTrip
	}

	settings := func(op string) gobreaker.Settings {
		return gobreaker.Settings{
			Name:        opts.Name + ":" + op,
			MaxRequests: opts.MaxRequests,
			Interval:    opts.Interval,
			Timeout:     opts.Timeout,
			ReadyToTrip: opts.ReadyToTrip,
		}
	}

	getBreaker := gobreaker.NewCircuitBreaker[[]byte](settings("get"))
	setBreaker := gobreaker.NewCircuitBreaker[struct{}](settings("set"))
	siaBreaker := gobreaker.NewCircuitBreaker[bool](settings("set_if_absent"))
	delBreaker := gobreaker.NewCircuitBreaker[struct{}](settings("delete"))

	bs := &BreakerStore{inner: store}

	bs.get = func(ctx context.Context, key string) ([]byte, error) {
		v, err := getBreaker.Execute(func() ([]byte, error) {
			return store.Get(ctx, key)
		})
		return v, translateBreakerErr(err)
	}
	bs.set = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		_, err := setBreaker.Execute(func() (struct{}, error) {
			return struct{}{}, store.Set(ctx, key, value, ttl)
		})
		return translateBreakerErr(err)
	}
	bs.sia = func(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
		ok, err := siaBreaker.Execute(func() (bool, error) {
			return store.SetIfAbsent(ctx, key, value, ttl)
		})
		return ok, translateBreakerErr(err)
	}
	bs.del = func(ctx context.Context, key string) error {
		_, err := delBreaker.Execute(func() (struct{}, error) {
			return struct{}{}, store.Delete(ctx, key)
		})
		return translateBreakerErr(err)
	}

	return bs, nil
}

func translateBreakerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return b.get(ctx, key)
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.set(ctx, key, value, ttl)
}

func (b *BreakerStore) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return b.sia(ctx, key, value, ttl)
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	return b.del(ctx, key)
}

// CompareDelete forwards to the wrapped Store's CompareDelete when it
// implements compareDeleter, so Lock's atomic-unlock fast path still works
// through a BreakerStore — without this, wrapping a RedisStore in a
// BreakerStore would silently downgrade every lock release to the
// non-atomic fallback.
func (b *BreakerStore) CompareDelete(ctx context.Context, key, token string) (bool, error) {
	cd, ok := b.inner.(compareDeleter)
	if !ok {
		return false, fmt.Errorf("cache: inner store does not support compare-delete")
	}
	return cd.CompareDelete(ctx, key, token)
}
