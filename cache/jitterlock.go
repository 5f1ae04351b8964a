package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// JitterLock is Jitter plus a distributed lock single-flighting the miss
// path across the whole fleet. An in-process singleflight.Group sits in
// front of the lock, collapsing concurrent in-process callers into one
// shared attempt before anyone even touches the remote store's lock key.
//
// On a cold key under N concurrent callers, the loader is invoked exactly
// once fleet-wide provided lockMaxRetries × lockRetryInterval exceeds the
// loader's own latency. When the lock can't be acquired within that
// budget, a caller falls back to a direct loader call rather than waiting
// indefinitely.
type JitterLock struct {
	baseStrategy
	lock  Locker
	group singleflight.Group
}

// NewJitterLock builds a JitterLock strategy over store, using lock for
// fleet-wide mutual exclusion on the miss path.
func NewJitterLock(store Store, lock Locker, cfg Config, metrics Metrics, log *slog.Logger) (*JitterLock, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if lock == nil {
		return nil, ErrInvalidConfig
	}
	return &JitterLock{
		baseStrategy: newBaseStrategy("jitter-lock", store, cfg, metrics, log),
		lock:         lock,
	}, nil
}

func (j *JitterLock) GetOrLoad(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if loader == nil {
		return nil, false, ErrNilLoader
	}

	if v, ok := j.rawGet(ctx, key); ok {
		j.metrics.Hit(j.name)
		return v, true, nil
	}
	j.metrics.Miss(j.name)

	return j.loadWithSingleflight(ctx, key, loader)
}

type lockLoadResult struct {
	value []byte
	found bool
}

// loadWithSingleflight coalesces concurrent in-process callers for key into
// one shared loadWithLock attempt, shielded from any individual caller's
// own cancellation via a detached context — one caller giving up must not
// abort the work every other caller is waiting on.
func (j *JitterLock) loadWithSingleflight(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	sharedCtx := detachedContext{parent: ctx}
	resultCh := j.group.DoChan(key, func() (any, error) {
		value, found, err := j.loadWithLock(sharedCtx, key, loader)
		return lockLoadResult{value: value, found: found}, err
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(lockLoadResult)
		return r.value, r.found, nil
	}
}

func (j *JitterLock) loadWithLock(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	// Double-check: another flight (a different process, or a singleflight
	// caller that lost the race to be "leader" across a restart boundary)
	// may have already populated the cache while this one waited to start.
	if v, ok := j.rawGet(ctx, key); ok {
		j.metrics.Hit(j.name)
		return v, true, nil
	}

	waitStart := time.Now()
	unlock, ok, err := j.lock.TryLock(ctx, j.lockResource(key))
	if err != nil {
		// A store failure while taking the lock is a transient remote-store
		// failure: log it and load without the lock instead of failing.
		j.log.WarnContext(ctx, "cache: lock acquire failed, loading without lock", "key", key, "error", err)
		return j.loadAndCache(ctx, key, loader)
	}
	if ok {
		defer j.releaseLock(unlock)
		return j.loadAndCache(ctx, key, loader)
	}

	value, found, waited := j.waitAndRetryGet(ctx, key)
	j.metrics.LockWait(j.name, time.Since(waitStart))
	if waited {
		return value, found, nil
	}

	// Lock never freed up within the configured retry budget: fall back to
	// a direct, unprotected loader call rather than waiting indefinitely.
	// This is a deliberate, fixed default, not something a single request
	// can opt out of.
	return j.loadAndCache(ctx, key, loader)
}

// waitAndRetryGet polls the cache for up to cfg.LockMaxRetries attempts,
// sleeping cfg.LockRetryInterval between each, hoping the current lock
// holder populates the entry. The third return value is false if the
// budget was exhausted without a hit.
func (j *JitterLock) waitAndRetryGet(ctx context.Context, key string) ([]byte, bool, bool) {
	for attempt := 0; attempt < j.cfg.LockMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false, false
		case <-time.After(j.cfg.LockRetryInterval):
		}
		if v, ok := j.rawGet(ctx, key); ok {
			return v, true, true
		}
	}
	return nil, false, false
}

func (j *JitterLock) loadAndCache(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	j.metrics.LoaderCall(j.name)
	value, found, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	ttl := jitteredTTL(j.cfg.BaseTTL, j.cfg.JitterMax)
	j.rawSet(ctx, key, value, ttl)
	return value, true, nil
}

func (j *JitterLock) releaseLock(unlock Unlocker) {
	unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := unlock(unlockCtx); err != nil {
		if errors.Is(err, errLockExpired) {
			j.log.InfoContext(unlockCtx, "cache: unlock no-op, lock already expired")
			return
		}
		j.log.WarnContext(unlockCtx, "cache: unlock failed", "error", err)
	}
}

// unlockTimeout bounds the deferred unlock call's own context so a slow
// store doesn't hang the worker that just finished a (possibly long)
// loader invocation.
const unlockTimeout = 5 * time.Second
