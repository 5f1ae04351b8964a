package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvelope_StateMachine verifies P5: for any envelope constructed with
// baseTTL >= 0, softTTLRatio in [0,1], jitter >= 0, exactly one of
// {fresh, stale, expired} holds at any instant, and the three become true
// in that temporal order as now advances.
func TestEnvelope_StateMachine(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	env := NewEnvelope(start, "V", 60*time.Second, 0, 0.8)

	require.True(t, env.SoftExpireAt.Before(env.HardExpireAt) || env.SoftExpireAt.Equal(env.HardExpireAt))

	assert.Equal(t, StateFresh, env.StateAt(start))
	assert.True(t, env.Fresh(start))

	justBeforeSoft := env.SoftExpireAt.Add(-time.Millisecond)
	assert.Equal(t, StateFresh, env.StateAt(justBeforeSoft))

	atSoft := env.SoftExpireAt
	assert.Equal(t, StateStale, env.StateAt(atSoft))
	assert.True(t, env.Stale(atSoft))

	justBeforeHard := env.HardExpireAt.Add(-time.Millisecond)
	assert.Equal(t, StateStale, env.StateAt(justBeforeHard))

	atHard := env.HardExpireAt
	assert.Equal(t, StateExpired, env.StateAt(atHard))
	assert.True(t, env.Expired(atHard))

	longAfter := env.HardExpireAt.Add(time.Hour)
	assert.Equal(t, StateExpired, env.StateAt(longAfter))
}

func TestEnvelope_TotalTTLNeverNegative(t *testing.T) {
	start := time.Now()
	env := NewEnvelope(start, 1, 10*time.Second, 0, 0.5)
	past := start.Add(time.Hour)
	assert.Equal(t, time.Duration(0), env.TotalTTL(past))
}

func TestEnvelope_ClampsOutOfRangeInputs(t *testing.T) {
	start := time.Now()

	env := NewEnvelope(start, 1, 10*time.Second, -5*time.Second, 1.5)
	assert.False(t, env.HardExpireAt.Before(env.SoftExpireAt))
	assert.Equal(t, 10*time.Second, env.HardExpireAt.Sub(start))
	assert.Equal(t, env.HardExpireAt, env.SoftExpireAt)

	env2 := NewEnvelope(start, 1, -10*time.Second, 0, 0.5)
	assert.Equal(t, start, env2.HardExpireAt)
}
