package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// LoadFunc is the loader every strategy's GetOrLoad accepts: a zero-argument
// (besides ctx) function returning a value, a found flag, and an error. A
// legitimate not-found result is (nil, false, nil), never an error. The
// loader must be safe to invoke from a background execution context (a
// revalpool worker) and must not retain references to strategy internals.
type LoadFunc func(ctx context.Context) ([]byte, bool, error)

// Strategy is the shared contract of every cache-access strategy.
type Strategy interface {
	// GetOrLoad returns the cached value for key, invoking loader on a miss
	// per the strategy's own stampede-protection guarantee. found is false
	// only when neither a cache entry nor a successful loader call produced
	// a value — a legitimate not-found result, not an error.
	GetOrLoad(ctx context.Context, key string, loader LoadFunc) (value []byte, found bool, err error)

	// Invalidate removes key from this strategy's namespace. It is
	// idempotent: invalidating an absent key is not an error.
	Invalidate(ctx context.Context, key string) error

	// Name returns the strategy's stable identifier, used to namespace its
	// remote-store keys ("product:<strategyName>:<userKey>").
	Name() string
}

// baseStrategy bundles the fields every strategy implementation needs:
// the backing store, the configured TTL parameters, metrics, and a logger.
// It is embedded, never used directly as a Strategy.
type baseStrategy struct {
	name    string
	store   Store
	cfg     Config
	metrics Metrics
	log     *slog.Logger
}

func newBaseStrategy(name string, store Store, cfg Config, metrics Metrics, log *slog.Logger) baseStrategy {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return baseStrategy{name: name, store: store, cfg: cfg, metrics: metrics, log: log.With("strategy", name)}
}

// cacheKey derives this strategy's namespaced remote-store key for a
// caller-supplied key ("product:<strategyName>:<userKey>"). Every
// strategy's keys live in a disjoint namespace from every other strategy's,
// which is what makes namespace isolation hold trivially: the two
// namespaces never share a key to begin with.
func (b baseStrategy) cacheKey(key string) string {
	return "product:" + b.name + ":" + key
}

// lockResource derives the resource name passed to Locker.TryLock/WaitForLock
// for this strategy and key ("refresh:<strategyName>:<userKey>", to which
// the lock primitive itself prepends a "lock:" prefix).
func (b baseStrategy) lockResource(key string) string {
	return "refresh:" + b.name + ":" + key
}

func (b baseStrategy) Name() string {
	return b.name
}

// rawGet fetches the namespaced entry for key, applying a fail-open read
// path: a store error that isn't "key not found" is logged at warn and
// treated exactly like a miss — it is never propagated to the caller.
func (b baseStrategy) rawGet(ctx context.Context, key string) ([]byte, bool) {
	v, err := b.store.Get(ctx, b.cacheKey(key))
	if err == nil {
		return v, true
	}
	if !errors.Is(err, ErrKeyNotFound) {
		b.log.WarnContext(ctx, "cache: store get failed, treating as miss", "key", key, "error", err)
	}
	return nil, false
}

// rawSet best-effort writes value at the namespaced key. A failure is
// logged and silently dropped; the write is retried implicitly by the
// next caller that misses.
func (b baseStrategy) rawSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := b.store.Set(ctx, b.cacheKey(key), value, ttl); err != nil {
		b.log.WarnContext(ctx, "cache: store set failed, dropping write", "key", key, "error", err)
	}
}

// Invalidate removes this strategy's namespaced entry for key. Deleting an
// absent key is not an error at the Store level, so this is idempotent by
// construction.
func (b baseStrategy) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := b.store.Delete(ctx, b.cacheKey(key)); err != nil {
		return err
	}
	return nil
}
