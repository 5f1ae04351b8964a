package cache

import (
	"context"
	"time"
)

// detachedContext returns a context carrying ctx's Values but none of its
// cancellation: Done never fires because the parent was cancelled, and Err
// is always nil until the returned context's own deadline (if any) elapses.
//
// This exists so work shared across concurrent callers via singleflight (or
// a background revalidation handed to revalpool) isn't aborted just because
// the one caller who happened to trigger it gave up waiting — every other
// caller blocked on the same singleflight key, and any future caller who'll
// reuse the freshly-written cache entry, still needs that work to finish.
type detachedContext struct {
	parent context.Context
}

func (d detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}       { return nil }
func (d detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any           { return d.parent.Value(key) }

// withIndependentTimeout wraps ctx so the returned context retains ctx's
// Values, is detached from ctx's own cancellation, and carries its own
// timeout. Used for background refresh tasks handed to revalpool: the
// refresh must finish (or time out) on its own schedule, not the
// triggering caller's.
func withIndependentTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(detachedContext{parent: ctx}, timeout)
}
