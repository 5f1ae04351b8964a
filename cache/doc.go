// Package cache implements a set of composable cache-access strategies that
// share one contract: given a key and a loader, return a value while
// honoring the strategy's guarantees against cache stampede — the failure
// mode where a hot key's expiration causes a burst of concurrent callers to
// simultaneously bypass the cache and hammer the origin.
//
// # Strategies
//
// Five strategies are provided, in increasing order of stampede
// protection:
//
//   - Basic: no protection. A burst of N concurrent misses yields up to N
//     loader calls.
//   - Jitter: Basic plus randomized TTL, so keys populated in lockstep
//     de-synchronize their expirations instead of expiring together.
//   - JitterLock: Jitter plus a distributed lock single-flighting the miss
//     path across the whole fleet.
//   - JitterSwr: stale-while-revalidate. A stale value is returned
//     immediately while at most one background task refreshes it.
//   - FullProtection: JitterSwr, but both the foreground (expired/miss) and
//     background (stale) revalidation paths go through the distributed
//     lock.
//
// # Namespacing
//
// Every strategy owns a disjoint key namespace: the remote-store key is
// always "product:<strategyName>:<key>". This keeps the stale-while-revalidate
// envelope format and the bare-payload format from colliding under the same
// key, and makes benchmarking strategies against the same logical key
// well-defined.
//
// # Failure policy
//
// The engine is fail-open: a slightly stale or uncached response is always
// preferred over a surfaced error. Remote-store errors are logged and
// treated as a cache miss on read, a silent dropped write on write. Only the
// loader's own error is ever returned to the caller.
package cache
