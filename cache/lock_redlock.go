package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	goredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// RedlockFactory is an alternate Locker backed by redsync's Redlock
// algorithm. It exists for deployments where the remote store itself is a
// set of independent Redis instances rather than one shared node — quorum
// acquisition across N>1 instances tolerates a minority of them being down
// or partitioned, which the single-node Lock cannot.
//
// With exactly one client it degrades to an ordinary single-node lock;
// redsync documents this itself. RedlockFactory satisfies the same Locker
// contract as Lock, so a strategy that takes a Locker can be handed either
// interchangeably.
type RedlockFactory struct {
	rs  *redsync.Redsync
	ttl time.Duration
}

// NewRedlockFactory builds a RedlockFactory across one or more independent
// Redis clients. ttl must be positive.
func NewRedlockFactory(ttl time.Duration, clients ...redis.UniversalClient) (*RedlockFactory, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: redlock requires at least one client", ErrInvalidConfig)
	}
	if ttl <= 0 {
		return nil, ErrInvalidLockTTL
	}
	pools := make([]rsredis.Pool, 0, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, fmt.Errorf("%w: redlock client %d is nil", ErrNilClient, i)
		}
		pools = append(pools, goredis.NewPool(c))
	}
	return &RedlockFactory{rs: redsync.New(pools...), ttl: ttl}, nil
}

func (f *RedlockFactory) TryLock(ctx context.Context, resource string) (Unlocker, bool, error) {
	if resource == "" {
		return nil, false, ErrEmptyKey
	}
	mutex := f.rs.NewMutex(resource, redsync.WithExpiry(f.ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		if errors.Is(err, redsync.ErrFailed) || isTakenErr(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: redlock acquire %q: %w", resource, err)
	}
	return redlockUnlocker(mutex), true, nil
}

func (f *RedlockFactory) WaitForLock(ctx context.Context, resource string) (Unlocker, error) {
	if resource == "" {
		return nil, ErrEmptyKey
	}
	mutex := f.rs.NewMutex(resource, redsync.WithExpiry(f.ttl), redsync.WithTries(math.MaxInt32))
	if err := mutex.LockContext(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("cache: redlock wait %q: %w", resource, err)
	}
	return redlockUnlocker(mutex), nil
}

func redlockUnlocker(mutex *redsync.Mutex) Unlocker {
	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			// ErrLockAlreadyExpired (and similar "no longer ours") outcomes
			// are the redlock equivalent of the fencing no-op documented on
			// Unlocker: by the time we'd release it, it wasn't ours anymore.
			if isExpiredErr(err) {
				return nil
			}
			return fmt.Errorf("cache: redlock unlock %q: %w", mutex.Name(), err)
		}
		if !ok {
			return nil
		}
		return nil
	}
}

func isTakenErr(err error) bool {
	var taken *redsync.ErrTaken
	return errors.As(err, &taken)
}

func isExpiredErr(err error) bool {
	return errors.Is(err, redsync.ErrExtendFailed) || errors.Is(err, redsync.ErrLockAlreadyExpired)
}
