package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/js0507dev/cache-stampede-test/internal/refreshset"
	"github.com/js0507dev/cache-stampede-test/internal/revalpool"
)

// FullProtection is JitterSwr with the distributed lock layered onto both
// the foreground (expired/miss) and background (stale) revalidation paths:
// the foreground path gets the same fleet-wide single-flighting as
// JitterLock, and the background refresh path only proceeds if it wins the
// same lock, so two processes racing to refresh the same stale key don't
// both hit the origin.
type FullProtection struct {
	baseStrategy
	lock       Locker
	group      singleflight.Group
	refreshing *refreshset.Set
	pool       *revalpool.Pool

	// retryBackgroundOnLockBusy: when a background refresh loses the lock
	// race, should it bet that the current holder will repopulate the
	// cache before giving up, or skip this cycle outright? Defaults to
	// false — see DESIGN.md.
	retryBackgroundOnLockBusy bool
}

// FullProtectionOption configures a FullProtection at construction.
type FullProtectionOption func(*FullProtection)

// WithRetryBackgroundOnLockBusy opts into waiting for the current lock
// holder to repopulate the cache (bounded by cfg.LockMaxRetries ×
// cfg.LockRetryInterval) when a background refresh finds the lock already
// held, instead of the default behavior of skipping that refresh cycle
// outright. See DESIGN.md for the tradeoff this resolves.
func WithRetryBackgroundOnLockBusy(enabled bool) FullProtectionOption {
	return func(f *FullProtection) { f.retryBackgroundOnLockBusy = enabled }
}

// NewFullProtection builds a FullProtection strategy.
func NewFullProtection(store Store, lock Locker, cfg Config, metrics Metrics, log *slog.Logger, pool *revalpool.Pool, opts ...FullProtectionOption) (*FullProtection, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if lock == nil {
		return nil, ErrInvalidConfig
	}
	if pool == nil {
		return nil, ErrInvalidConfig
	}
	f := &FullProtection{
		baseStrategy: newBaseStrategy("full-protection", store, cfg, metrics, log),
		lock:         lock,
		refreshing:   refreshset.New(),
		pool:         pool,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FullProtection) GetOrLoad(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if loader == nil {
		return nil, false, ErrNilLoader
	}

	raw, ok := f.rawGet(ctx, key)
	if !ok {
		f.metrics.Miss(f.name)
		return f.loadWithSingleflight(ctx, key, loader)
	}

	env, err := DecodeEnvelope[[]byte](raw)
	if err != nil {
		f.log.WarnContext(ctx, "cache: envelope decode failed, treating as miss", "key", key, "error", err)
		f.metrics.Miss(f.name)
		return f.loadWithSingleflight(ctx, key, loader)
	}

	now := time.Now()
	switch env.StateAt(now) {
	case StateFresh:
		f.metrics.Hit(f.name)
		return env.Value, true, nil
	case StateStale:
		f.metrics.Hit(f.name)
		f.scheduleBackgroundRefresh(key, loader)
		return env.Value, true, nil
	default: // StateExpired
		f.metrics.Miss(f.name)
		return f.loadWithSingleflight(ctx, key, loader)
	}
}

func (f *FullProtection) loadWithSingleflight(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	sharedCtx := detachedContext{parent: ctx}
	resultCh := f.group.DoChan(key, func() (any, error) {
		value, found, err := f.loadWithLock(sharedCtx, key, loader)
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

func (f *FullProtection) loadWithLock(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	if v, ok := f.rawGet(ctx, key); ok {
		if env, err := DecodeEnvelope[[]byte](v); err == nil && !env.Expired(time.Now()) {
			f.metrics.Hit(f.name)
			return env.Value, true, nil
		}
	}

	waitStart := time.Now()
	unlock, ok, err := f.lock.TryLock(ctx, f.lockResource(key))
	if err != nil {
		// A store failure while taking the lock is a transient remote-store
		// failure: log it and load without the lock instead of failing.
		f.log.WarnContext(ctx, "cache: lock acquire failed, loading without lock", "key", key, "error", err)
		return f.loadAndCache(ctx, key, loader)
	}
	if ok {
		defer f.releaseLock(unlock)
		return f.loadAndCache(ctx, key, loader)
	}

	value, found, waited := f.waitAndRetryGet(ctx, key)
	f.metrics.LockWait(f.name, time.Since(waitStart))
	if waited {
		return value, found, nil
	}

	// Lock never freed up within budget: fall back to an unprotected direct
	// call, same default as JitterLock.
	return f.loadAndCache(ctx, key, loader)
}

func (f *FullProtection) waitAndRetryGet(ctx context.Context, key string) ([]byte, bool, bool) {
	for attempt := 0; attempt < f.cfg.LockMaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false, false
		case <-time.After(f.cfg.LockRetryInterval):
		}
		if v, ok := f.rawGet(ctx, key); ok {
			if env, err := DecodeEnvelope[[]byte](v); err == nil && !env.Expired(time.Now()) {
				return env.Value, true, true
			}
		}
	}
	return nil, false, false
}

func (f *FullProtection) loadAndCache(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	f.metrics.LoaderCall(f.name)
	value, found, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	f.writeEnvelope(ctx, key, value)
	return value, true, nil
}

func (f *FullProtection) writeEnvelope(ctx context.Context, key string, value []byte) {
	env := NewEnvelope(time.Now(), value, f.cfg.BaseTTL, jitteredTTL(0, f.cfg.JitterMax), f.cfg.SoftTTLRatio)
	encoded, err := EncodeEnvelope(env)
	if err != nil {
		f.log.WarnContext(ctx, "cache: envelope encode failed, dropping write", "key", key, "error", err)
		return
	}
	f.rawSet(ctx, key, encoded, env.TotalTTL(time.Now()))
}

// scheduleBackgroundRefresh reserves key in-process (cheap, no round trip)
// before ever touching the distributed lock; only the reservation's winner
// attempts the lock, and only the lock's winner actually calls the loader.
func (f *FullProtection) scheduleBackgroundRefresh(key string, loader LoadFunc) {
	if !f.refreshing.TryAdd(key) {
		f.metrics.BackgroundRefresh(f.name, "skipped")
		return
	}

	err := f.pool.Submit(func() {
		defer f.refreshing.Remove(key)
		ctx, cancel := withIndependentTimeout(context.Background(), backgroundRefreshTimeout)
		defer cancel()

		unlock, ok, err := f.lock.TryLock(ctx, f.lockResource(key))
		if err != nil {
			f.log.WarnContext(ctx, "cache: background lock acquire failed", "key", key, "error", err)
			f.metrics.BackgroundRefresh(f.name, "error")
			return
		}
		if !ok {
			if !f.retryBackgroundOnLockBusy {
				f.metrics.BackgroundRefresh(f.name, "skipped")
				return
			}
			// Opt-in: bet that the current holder finishes before our own
			// retry budget expires, per WithRetryBackgroundOnLockBusy. The
			// cached entry is still stale, so only a fresh one counts.
			for attempt := 0; attempt < f.cfg.LockMaxRetries && ctx.Err() == nil; attempt++ {
				time.Sleep(f.cfg.LockRetryInterval)
				if v, ok := f.rawGet(ctx, key); ok {
					if env, err := DecodeEnvelope[[]byte](v); err == nil && env.Fresh(time.Now()) {
						f.metrics.BackgroundRefresh(f.name, "success")
						return
					}
				}
			}
			f.metrics.BackgroundRefresh(f.name, "skipped")
			return
		}
		defer f.releaseLock(unlock)

		f.metrics.LoaderCall(f.name)
		value, found, err := loader(ctx)
		if err != nil {
			f.log.WarnContext(ctx, "cache: background refresh loader failed", "key", key, "error", err)
			f.metrics.BackgroundRefresh(f.name, "error")
			return
		}
		if !found {
			f.metrics.BackgroundRefresh(f.name, "not_found")
			return
		}
		f.writeEnvelope(ctx, key, value)
		f.metrics.BackgroundRefresh(f.name, "success")
	})
	if err != nil {
		f.refreshing.Remove(key)
		f.log.WarnContext(context.Background(), "cache: background refresh not scheduled", "key", key, "error", err)
		f.metrics.BackgroundRefresh(f.name, "skipped")
	}
}

func (f *FullProtection) releaseLock(unlock Unlocker) {
	unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := unlock(unlockCtx); err != nil {
		if errors.Is(err, errLockExpired) {
			f.log.InfoContext(unlockCtx, "cache: unlock no-op, lock already expired")
			return
		}
		f.log.WarnContext(unlockCtx, "cache: unlock failed", "error", err)
	}
}
