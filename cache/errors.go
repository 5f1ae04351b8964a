package cache

import "errors"

// =============================================================================
// Construction errors
// =============================================================================

var (
	// ErrNilStore is returned when a strategy or lock is constructed with a
	// nil Store.
	ErrNilStore = errors.New("cache: nil store")

	// ErrNilClient is returned when NewRedisStore is given a nil client.
	ErrNilClient = errors.New("cache: nil redis client")

	// ErrNilLoader is returned when GetOrLoad is called with a nil loader.
	ErrNilLoader = errors.New("cache: nil loader function")

	// ErrEmptyKey is returned by any operation given an empty key.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrInvalidConfig is returned when a strategy or lock is constructed
	// with an internally inconsistent configuration. This is a programmer
	// error and is never silently downgraded to a miss.
	ErrInvalidConfig = errors.New("cache: invalid configuration")
)

// =============================================================================
// Lock errors
// =============================================================================

var (
	// ErrLockFailed reports a lock that could not be acquired. Lock and
	// RedlockFactory do not return it: TryLock reports a held resource as
	// ok == false with a nil error, and WaitForLock reports giving up as
	// ctx.Err().
	ErrLockFailed = errors.New("cache: failed to acquire lock")

	// ErrInvalidLockTTL is returned when a lock TTL is not positive.
	ErrInvalidLockTTL = errors.New("cache: lock ttl must be positive")

	// errLockExpired reports an unlock whose compare failed because the
	// lock already expired or was stolen. The Unlockers of Lock and
	// RedlockFactory do not return it: they treat that case as a no-op and
	// return nil.
	errLockExpired = errors.New("cache: lock expired or stolen")
)

// =============================================================================
// Store errors
// =============================================================================

var (
	// ErrKeyNotFound is the Store-level miss sentinel. Strategies never
	// propagate it to callers; GetOrLoad instead returns (nil, false, nil).
	ErrKeyNotFound = errors.New("cache: key not found")

	// ErrStoreUnavailable is returned by BreakerStore while its underlying
	// circuit breaker is open. Strategies classify it identically to any
	// other transient remote-store failure: logged, miss on read, silently
	// dropped on write.
	ErrStoreUnavailable = errors.New("cache: store unavailable")
)

// =============================================================================
// Serialization errors
// =============================================================================

var (
	// ErrDecodeFailed means the stored bytes could not be reconstructed as
	// the requested type. Strategies treat this as a miss, never an error.
	ErrDecodeFailed = errors.New("cache: decode failed")
)
