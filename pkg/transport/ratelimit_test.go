package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenBucketAllowsWithinBurst(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{OpsPerSecond: 10, OpsBurst: 5, BytesPerSecond: 1000, BytesBurst: 1000})

	for i := 0; i < 5; i++ {
		require.True(t, b.Allow(10), "burst token %d should be allowed", i)
	}
	require.False(t, b.Allow(10), "burst exhausted, next call should be denied")
}

func TestTokenBucketDeniesOversizedFrame(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{OpsPerSecond: 10, OpsBurst: 10, BytesPerSecond: 100, BytesBurst: 100})
	require.False(t, b.Allow(101))
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := newTokenBucket(RateLimitConfig{OpsPerSecond: 1000, OpsBurst: 1, BytesPerSecond: 1000, BytesBurst: 1000})

	require.True(t, b.Allow(1))
	require.False(t, b.Allow(1))

	// force the refill clock backward so the next Allow call sees enough
	// elapsed time to have replenished the single op token.
	b.mu.Lock()
	b.lastRefill = time.Now().Add(-100 * time.Millisecond)
	b.mu.Unlock()

	require.True(t, b.Allow(1))
}
