// Package refreshset implements a process-local refresh-in-flight set: at
// most one background loader invocation is scheduled per key per refresh
// cycle. Membership must be an atomic test-and-add — a key is reserved in
// the same step it's checked, or two goroutines racing to observe the same
// stale entry would both schedule a refresh.
package refreshset

import (
	"hash/maphash"
	"sync"
)

const shardCount = 32

// Set is a sharded, concurrent-safe set of in-flight keys. It is scoped to
// one process: the mechanism it realizes is inherently process-local, not
// a distributed claim — the distributed exclusivity guarantee for
// stampede protection comes from the lock primitive in cache.Locker, not
// from this set.
type Set struct {
	seed   maphash.Seed
	shards [shardCount]shard
}

type shard struct {
	mu      sync.Mutex
	members map[string]struct{}
}

// New builds an empty Set.
func New() *Set {
	s := &Set{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].members = make(map[string]struct{})
	}
	return s
}

func (s *Set) shardFor(key string) *shard {
	var h maphash.Hash
	h.SetSeed(s.seed)
	_, _ = h.WriteString(key)
	return &s.shards[h.Sum64()%shardCount]
}

// TryAdd reserves key for this refresh cycle. It returns true if the
// reservation succeeded (the caller should schedule a refresh and later call
// Remove), or false if key was already reserved by another goroutine (the
// caller should skip scheduling — someone else's refresh is already in
// flight for it).
func (s *Set) TryAdd(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.members[key]; exists {
		return false
	}
	sh.members[key] = struct{}{}
	return true
}

// Remove releases key's reservation once its refresh cycle has finished
// (successfully or not). Removing a key that isn't reserved is a no-op.
func (s *Set) Remove(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	delete(sh.members, key)
}

// Len reports the total number of currently in-flight keys, for diagnostics
// and tests.
func (s *Set) Len() int {
	n := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		n += len(s.shards[i].members)
		s.shards[i].mu.Unlock()
	}
	return n
}
