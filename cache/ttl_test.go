package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitteredTTL_ZeroJitterReturnsBase(t *testing.T) {
	assert.Equal(t, 60*time.Second, jitteredTTL(60*time.Second, 0))
	assert.Equal(t, 60*time.Second, jitteredTTL(60*time.Second, -time.Second))
}

// TestJitteredTTL_StaysWithinBounds verifies the result always falls in
// [baseTTL, baseTTL + jitterMax], across many samples since the jitter is
// randomized.
func TestJitteredTTL_StaysWithinBounds(t *testing.T) {
	base := 60 * time.Second
	jitterMax := 10 * time.Second
	for i := 0; i < 1000; i++ {
		ttl := jitteredTTL(base, jitterMax)
		assert.GreaterOrEqual(t, ttl, base)
		assert.LessOrEqual(t, ttl, base+jitterMax)
	}
}
