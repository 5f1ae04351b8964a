package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type ctxKey string

func TestDetachedContext_PreservesValuesButNotCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey("k"), "v"))
	detached := detachedContext{parent: parent}

	assert.Equal(t, "v", detached.Value(ctxKey("k")))
	assert.Nil(t, detached.Done())
	assert.NoError(t, detached.Err())

	cancel()
	// Cancelling the parent must not be observable through detached.
	assert.Nil(t, detached.Done())
	assert.NoError(t, detached.Err())
	_, hasDeadline := detached.Deadline()
	assert.False(t, hasDeadline)
}

func TestWithIndependentTimeout_ExpiresOnItsOwnSchedule(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel() // parent already cancelled

	ctx, done := withIndependentTimeout(parent, 20*time.Millisecond)
	defer done()

	assert.NoError(t, ctx.Err())

	select {
	case <-ctx.Done():
		t.Fatal("context expired immediately despite independent timeout")
	default:
	}

	time.Sleep(40 * time.Millisecond)
	assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
