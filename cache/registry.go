package cache

import (
	"fmt"
	"log/slog"

	"github.com/js0507dev/cache-stampede-test/internal/revalpool"
)

// Strategy names are stable identifiers used both for the remote-store
// namespace prefix and for selecting a strategy at the HTTP layer.
const (
	StrategyBasic          = "basic"
	StrategyJitter         = "jitter"
	StrategyJitterSwr      = "jitter-swr"
	StrategyJitterLock     = "jitter-lock"
	StrategyFullProtection = "full-protection"
)

// AllStrategyNames lists every stable strategy name, in order of
// increasing protection.
var AllStrategyNames = []string{
	StrategyBasic,
	StrategyJitter,
	StrategyJitterLock,
	StrategyJitterSwr,
	StrategyFullProtection,
}

// RegistryOptions bundles the shared dependencies every strategy in a
// Registry is built from.
type RegistryOptions struct {
	Store   Store
	Lock    Locker
	Config  Config
	Metrics Metrics
	Logger  *slog.Logger
	Pool    *revalpool.Pool
}

// Registry holds one constructed instance of every strategy, keyed by its
// stable name, so a caller (typically the HTTP layer) can select a strategy
// by name at request time.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds every strategy over the given shared dependencies.
// Lock and Pool are required because JitterLock/JitterSwr/FullProtection
// all depend on one or the other.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Store == nil {
		return nil, ErrNilStore
	}
	if opts.Lock == nil {
		return nil, fmt.Errorf("%w: registry requires a Locker", ErrInvalidConfig)
	}
	if opts.Pool == nil {
		return nil, fmt.Errorf("%w: registry requires a revalpool.Pool", ErrInvalidConfig)
	}

	basic, err := NewBasic(opts.Store, opts.Config, opts.Metrics, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("cache: build basic strategy: %w", err)
	}
	jitter, err := NewJitter(opts.Store, opts.Config, opts.Metrics, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("cache: build jitter strategy: %w", err)
	}
	jitterLock, err := NewJitterLock(opts.Store, opts.Lock, opts.Config, opts.Metrics, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("cache: build jitter-lock strategy: %w", err)
	}
	jitterSwr, err := NewJitterSwr(opts.Store, opts.Config, opts.Metrics, opts.Logger, opts.Pool)
	if err != nil {
		return nil, fmt.Errorf("cache: build jitter-swr strategy: %w", err)
	}
	fullProtection, err := NewFullProtection(opts.Store, opts.Lock, opts.Config, opts.Metrics, opts.Logger, opts.Pool)
	if err != nil {
		return nil, fmt.Errorf("cache: build full-protection strategy: %w", err)
	}

	return &Registry{
		strategies: map[string]Strategy{
			StrategyBasic:          basic,
			StrategyJitter:         jitter,
			StrategyJitterLock:     jitterLock,
			StrategyJitterSwr:      jitterSwr,
			StrategyFullProtection: fullProtection,
		},
	}, nil
}

// Get returns the named strategy, or (nil, false) if name is unknown.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// All returns every registered strategy, in AllStrategyNames order.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(AllStrategyNames))
	for _, name := range AllStrategyNames {
		if s, ok := r.strategies[name]; ok {
			out = append(out, s)
		}
	}
	return out
}
