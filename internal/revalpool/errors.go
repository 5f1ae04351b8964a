package revalpool

import "errors"

var (
	// ErrNilTask is returned by Submit when given a nil task.
	ErrNilTask = errors.New("revalpool: nil task")

	// ErrQueueFull is returned by Submit when the pool's bounded queue has
	// no room. The caller (a strategy's background-dispatch path) is
	// expected to treat this as "skip this refresh cycle," never to block
	// the foreground request waiting for room.
	ErrQueueFull = errors.New("revalpool: queue full")

	// ErrPoolStopped is returned by Submit after Shutdown/Close, and by a
	// second call to Shutdown/Close.
	ErrPoolStopped = errors.New("revalpool: pool stopped")

	// ErrInvalidWorkers is returned by New when workers is out of range.
	ErrInvalidWorkers = errors.New("revalpool: invalid worker count")

	// ErrInvalidQueueSize is returned by New when queueSize is out of range.
	ErrInvalidQueueSize = errors.New("revalpool: invalid queue size")

	// ErrNilContext is returned by Shutdown when given a nil context.
	ErrNilContext = errors.New("revalpool: nil context")
)
