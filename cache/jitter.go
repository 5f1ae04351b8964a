package cache

import (
	"context"
	"log/slog"
)

// Jitter is Basic plus randomized TTL: each write's TTL is baseTTL plus a
// uniform random amount up to jitterMax, so a cohort of keys populated at
// the same instant don't all expire at the same instant. It does not
// single-flight concurrent misses — that guarantee starts at JitterLock.
type Jitter struct {
	baseStrategy
}

// NewJitter builds a Jitter strategy over store.
func NewJitter(store Store, cfg Config, metrics Metrics, log *slog.Logger) (*Jitter, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	return &Jitter{baseStrategy: newBaseStrategy("jitter", store, cfg, metrics, log)}, nil
}

func (j *Jitter) GetOrLoad(ctx context.Context, key string, loader LoadFunc) ([]byte, bool, error) {
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
