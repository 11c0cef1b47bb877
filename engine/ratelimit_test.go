package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_EnforcesMinimumInterval(t *testing.T) {
	limiter := NewRateLimiter(80*time.Millisecond, 90*time.Millisecond, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "identity-a"))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "identity-a"))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond,
		"second request on the same identity must wait out the minimum interval")
}

func TestRateLimiter_ScopedPerIdentity(t *testing.T) {
	limiter := NewRateLimiter(200*time.Millisecond, 210*time.Millisecond, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "identity-a"))

	// A fresh identity has its own floor and is not delayed by A's.
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "identity-b"))
	assert.Less(t, time.Since(start), 100*time.Millisecond,
		"rate-limit state must not be shared across identities")
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	limiter := NewRateLimiter(5*time.Second, 6*time.Second, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "identity-a"))

	cancelCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- limiter.Wait(cancelCtx, "identity-a") }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not honor cancellation")
	}
}

func TestRateLimiter_Forget(t *testing.T) {
	limiter := NewRateLimiter(300*time.Millisecond, 310*time.Millisecond, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "identity-a"))
	limiter.Forget("identity-a")

	// Forgotten state means the identity id starts with a fresh floor.
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "identity-a"))
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRateLimiter_ZeroDelays(t *testing.T) {
	limiter := NewRateLimiter(0, 0, rand.New(rand.NewSource(1)))
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Wait(ctx, "identity-a"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
