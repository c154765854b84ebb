package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, New(30).MinDelay())
	assert.Equal(t, time.Second, New(60).MinDelay())
	assert.Equal(t, time.Minute, New(1).MinDelay())
}

func TestClampBelowOne(t *testing.T) {
	assert.Equal(t, time.Minute, New(0).MinDelay())
	assert.Equal(t, time.Minute, New(-5).MinDelay())
}

// Three acquires at 6000/min must span at least two 10ms delays; burst 1
// means there is no catch-up credit to collapse them.
func TestAcquireEnforcesSpacing(t *testing.T) {
	g := New(6000)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, g.Acquire(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 2*g.MinDelay())
}

func TestAcquireHonorsCancellation(t *testing.T) {
	g := New(1) // 60s between calls
	ctx := context.Background()

	require.NoError(t, g.Acquire(ctx)) // first call passes immediately

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(cancelled)
	assert.Error(t, err)
}
