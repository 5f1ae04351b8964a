package cache

import "time"

// Metrics is the observability seam every strategy reports through. It is
// intentionally small and adapter-friendly — mirroring the interface+adapter
// split used elsewhere in the example pack's own metrics package — so a
// caller who doesn't care about metrics can pass NoopMetrics{} and pay
// nothing, while a production deployment wires metrics/prom.Adapter against
// a real prometheus.Registerer.
type Metrics interface {
	// Hit records a cache hit (value served without a loader call) for the
	// named strategy.
	Hit(strategy string)

	// Miss records a cache miss that fell through to the loader.
	Miss(strategy string)

	// LoaderCall records one loader invocation, successful or not. Paired
	// with Hit/Miss counts, this is what makes stampede protection visible:
	// a strategy is working if LoaderCall stays flat under concurrency that
	// makes Miss spike.
	LoaderCall(strategy string)

	// LockWait records how long a caller spent waiting to acquire this
	// strategy's distributed lock before proceeding (successfully or via
	// fallback).
	LockWait(strategy string, d time.Duration)

	// BackgroundRefresh records the outcome of one background revalidation
	// task: outcome is one of "success", "error", "not_found" (the loader
	// reported the key absent; the stale entry is left in place), or
	// "skipped" (a refresh was already in flight for this key, the pool did
	// not accept the task, or the distributed lock was held elsewhere).
	BackgroundRefresh(strategy, outcome string)
}

// NoopMetrics discards every call. It is the zero-value default for any
// strategy constructed without an explicit Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Hit(string)                       {}
func (NoopMetrics) Miss(string)                      {}
func (NoopMetrics) LoaderCall(string)                {}
func (NoopMetrics) LockWait(string, time.Duration)   {}
func (NoopMetrics) BackgroundRefresh(string, string) {}
