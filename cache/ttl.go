package cache

import (
	"math/rand/v2"
	"time"
)

// jitteredTTL returns baseTTL plus a uniformly distributed random duration
// in [0, jitterMax], so keys populated in lockstep desynchronize their
// expirations instead of expiring together. The result always satisfies
// ttl ∈ [baseTTL, baseTTL + jitterMax].
func jitteredTTL(baseTTL, jitterMax time.Duration) time.Duration {
	if jitterMax <= 0 {
		return baseTTL
	}
	return baseTTL + time.Duration(rand.Int64N(int64(jitterMax)+1))
}
