package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/js0507dev/cache-stampede-test/internal/refreshset"
	"github.com/js0507dev/cache-stampede-test/internal/revalpool"
)

// JitterSwr implements stale-while-revalidate: a stale value is returned
// immediately while at most one background task refreshes it per key per
// refresh cycle. An expired or missing entry falls through to a foreground
// load, in-process single-flighted so a thundering herd hitting one
// freshly-expired key still invokes the loader exactly once.
type JitterSwr struct {
	baseStrategy
	group      singleflight.Group
	refreshing *refreshset.Set
	pool       *revalpool.Pool
}

// NewJitterSwr builds a JitterSwr strategy. pool is the background
// revalidation dispatcher shared across strategies/keys; it is not owned by
// this strategy and is never shut down by it.
func NewJitterSwr(store Store, cfg Config, metrics Metrics, log *slog.Logger, pool *revalpool.Pool) (*JitterSwr, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if pool == nil {
		return nil, ErrInvalidConfig
	}
	return &JitterSwr{
		baseStrategy: newBaseStrategy("jitter-swr", store, cfg, metrics, log),
		refreshing:   refreshset.New(),
		pool:         pool,
	}, nil
}

func (j *JitterSwr) GetOrLoad(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	if loader == nil {
		return nil, false, ErrNilLoader
	}

	raw, ok := j.rawGet(ctx, key)
	if !ok {
		j.metrics.Miss(j.name)
		return j.loadForeground(ctx, key, loader)
	}

	env, err := DecodeEnvelope[[]byte](raw)
	if err != nil {
		// A corrupted or foreign-shaped entry is a miss, not an error: fall
		// through to the foreground path exactly as if nothing were cached.
		j.log.WarnContext(ctx, "cache: envelope decode failed, treating as miss", "key", key, "error", err)
		j.metrics.Miss(j.name)
		return j.loadForeground(ctx, key, loader)
	}

	now := time.Now()
	switch env.StateAt(now) {
	case StateFresh:
		j.metrics.Hit(j.name)
		return env.Value, true, nil
	case StateStale:
		j.metrics.Hit(j.name)
		j.scheduleBackgroundRefresh(key, loader)
		return env.Value, true, nil
	default: // StateExpired
		j.metrics.Miss(j.name)
		return j.loadForeground(ctx, key, loader)
	}
}

// loadForeground is the cold/expired path: one loader invocation per key is
// single-flighted across concurrent in-process callers. A detached context
// shields the shared call from any one caller's own cancellation.
func (j *JitterSwr) loadForeground(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	sharedCtx := detachedContext{parent: ctx}
	resultCh := j.group.DoChan(key, func() (any, error) {
		value, found, err := j.loadAndCache(sharedCtx, key, loader)
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

func (j *JitterSwr) loadAndCache(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
	j.metrics.LoaderCall(j.name)
	value, found, err := loader(ctx)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	j.writeEnvelope(ctx, key, value)
	return value, true, nil
}

func (j *JitterSwr) writeEnvelope(ctx context.Context, key string, value []byte) {
	env := NewEnvelope(time.Now(), value, j.cfg.BaseTTL, j.jitterAmount(), j.cfg.SoftTTLRatio)
	encoded, err := EncodeEnvelope(env)
	if err != nil {
		j.log.WarnContext(ctx, "cache: envelope encode failed, dropping write", "key", key, "error", err)
		return
	}
	j.rawSet(ctx, key, encoded, env.TotalTTL(time.Now()))
}

func (j *JitterSwr) jitterAmount() time.Duration {
	return jitteredTTL(0, j.cfg.JitterMax)
}

// scheduleBackgroundRefresh reserves key in the refresh-in-flight set and,
// only if the reservation succeeds, submits a refresh task to the shared
// pool. A key already reserved means another stale reader already
// triggered this cycle's refresh — this caller does nothing further, so at
// most one background loader invocation runs per key per refresh cycle.
func (j *JitterSwr) scheduleBackgroundRefresh(key string, loader LoadFunc) {
	if !j.refreshing.TryAdd(key) {
		j.metrics.BackgroundRefresh(j.name, "skipped")
		return
	}

	err := j.pool.Submit(func() {
		defer j.refreshing.Remove(key)
		ctx, cancel := withIndependentTimeout(context.Background(), backgroundRefreshTimeout)
		defer cancel()

		j.metrics.LoaderCall(j.name)
		value, found, err := loader(ctx)
		if err != nil {
			j.log.WarnContext(ctx, "cache: background refresh loader failed", "key", key, "error", err)
			j.metrics.BackgroundRefresh(j.name, "error")
			return
		}
		if !found {
			// The source disappeared underneath a previously-cached value;
			// leave the stale entry as-is rather than deleting it out from
			// under concurrent readers.
			j.metrics.BackgroundRefresh(j.name, "not_found")
			return
		}
		j.writeEnvelope(ctx, key, value)
		j.metrics.BackgroundRefresh(j.name, "success")
	})
	if err != nil {
		// Pool is full or stopped: release the reservation immediately so a
		// later stale read can retry instead of believing a refresh that
		// never actually got scheduled is already in flight.
		j.refreshing.Remove(key)
		j.log.WarnContext(context.Background(), "cache: background refresh not scheduled", "key", key, "error", err)
		j.metrics.BackgroundRefresh(j.name, "skipped")
	}
}

// backgroundRefreshTimeout bounds a background refresh's own loader call so
// a hung origin can't leak the worker holding its refreshset reservation
// forever.
const backgroundRefreshTimeout = 30 * time.Second
