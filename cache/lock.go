package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Unlocker releases a single lock acquisition. It is returned fresh by
// every successful TryLock/WaitForLock call and closes over that
// acquisition's own token — per-caller token storage, never a shared or
// global map. Calling it after the lock has already expired or been stolen
// by another holder is a documented no-op, never an error — this is the
// fencing guarantee that makes the lock safe under TTL expiry.
type Unlocker func(ctx context.Context) error

// Locker is the distributed-lock contract every strategy that needs
// single-flighting across the fleet is built against. cache.Lock is the
// default, always-available implementation; RedlockFactory
// is an alternate backend satisfying the same contract for deployments that
// need multi-node quorum locking instead.
type Locker interface {
	// TryLock makes exactly one acquisition attempt. ok is false (with a nil
	// error) when the resource is already held by someone else.
	TryLock(ctx context.Context, resource string) (unlock Unlocker, ok bool, err error)

	// WaitForLock retries TryLock on a jittered interval until it succeeds
	// or ctx is done, whichever comes first. A cancelled or deadline-expired
	// ctx is reported as ctx.Err(), not ErrLockFailed — the caller is
	// expected to distinguish "gave up waiting" from "lock unobtainable."
	WaitForLock(ctx context.Context, resource string) (Unlocker, error)
}

// compareDeleter is the optional interface-upgrade a Store may implement to
// let Lock release its acquisitions atomically (RedisStore, via a Lua
// script). A Store that doesn't implement it falls back to a
// get-then-delete sequence with a documented, accepted race window — fine
// for the in-process MemoryStore backend, where there is only ever one
// holder's worth of memory to race against anyway.
type compareDeleter interface {
	CompareDelete(ctx context.Context, key, token string) (bool, error)
}

// Lock is the default Locker: SET-if-absent with a TTL, released by a
// compare-and-delete keyed on a per-acquisition token.
type Lock struct {
	store         Store
	keyPrefix     string
	ttl           time.Duration
	retryInterval time.Duration
	retryJitter   float64
}

// LockOption configures a Lock at construction.
type LockOption func(*Lock)

// WithLockKeyPrefix overrides the default "lock:" prefix applied to every
// resource name before it reaches the store.
func WithLockKeyPrefix(prefix string) LockOption {
	return func(l *Lock) { l.keyPrefix = prefix }
}

// WithLockRetryInterval sets the base delay WaitForLock sleeps between
// attempts, before jitter is applied.
func WithLockRetryInterval(d time.Duration) LockOption {
	return func(l *Lock) { l.retryInterval = d }
}

// WithLockRetryJitter sets the fractional jitter ([0,1]) applied to the
// retry interval, so a burst of waiters retrying in lockstep de-synchronizes
// — the same rationale as the TTL jitter applied to cached entries.
func WithLockRetryJitter(fraction float64) LockOption {
	return func(l *Lock) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		l.retryJitter = fraction
	}
}

// NewLock builds a Lock over store with the given TTL. ttl must be
// positive — a lock with no expiration can never self-heal from a holder
// that crashes mid-critical-section.
func NewLock(store Store, ttl time.Duration, opts ...LockOption) (*Lock, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if ttl <= 0 {
		return nil, ErrInvalidLockTTL
	}
	l := &Lock{
		store:         store,
		keyPrefix:     "lock:",
		ttl:           ttl,
		retryInterval: 50 * time.Millisecond,
		retryJitter:   0.2,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Lock) lockKey(resource string) string {
	return l.keyPrefix + resource
}

func (l *Lock) TryLock(ctx context.Context, resource string) (Unlocker, bool, error) {
	if resource == "" {
		return nil, false, ErrEmptyKey
	}
	key := l.lockKey(resource)
	token := uuid.NewString()

	ok, err := l.store.SetIfAbsent(ctx, key, []byte(token), l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("cache: acquire lock %q: %w", resource, err)
	}
	if !ok {
		return nil, false, nil
	}
	return l.unlockerFor(key, token), true, nil
}

func (l *Lock) WaitForLock(ctx context.Context, resource string) (Unlocker, error) {
	for {
		unlock, ok, err := l.TryLock(ctx, resource)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay()):
		}
	}
}

func (l *Lock) retryDelay() time.Duration {
	if l.retryJitter == 0 {
		return l.retryInterval
	}
	// Uniform jitter in [-fraction/2, +fraction/2] of the base interval.
	spread := float64(l.retryInterval) * l.retryJitter
	offset := (rand.Float64() - 0.5) * spread
	d := time.Duration(float64(l.retryInterval) + offset)
	if d < 0 {
		return 0
	}
	return d
}

// unlockerFor closes over exactly one acquisition's key and token — this
// closure, not any shared map, is the only place that token is ever held.
func (l *Lock) unlockerFor(key, token string) Unlocker {
	return func(ctx context.Context) error {
		if cd, ok := l.store.(compareDeleter); ok {
			_, err := cd.CompareDelete(ctx, key, token)
			if err != nil {
				return fmt.Errorf("cache: unlock %q: %w", key, err)
			}
			// A false result means the lock already expired or was stolen
			// by another holder — a documented no-op, never an error.
			return nil
		}

		current, err := l.store.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return nil
			}
			return fmt.Errorf("cache: unlock %q: %w", key, err)
		}
		if string(current) != token {
			return nil
		}
		if err := l.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("cache: unlock %q: %w", key, err)
		}
		return nil
	}
}
