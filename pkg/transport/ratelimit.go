package transport

import (
	"sync"
	"time"
)

// tokenBucket is a small per-connection rate limiter: a configurable
// ops/sec and bytes/sec budget refilled continuously from time.Now().
type tokenBucket struct {
	mu sync.Mutex

	opsCapacity  float64
	opsTokens    float64
	opsRate      float64 // tokens/sec
	bytesCapacity float64
	bytesTokens  float64
	bytesRate    float64 // tokens/sec

	lastRefill time.Time
}

// RateLimitConfig holds the ops/sec and bytes/sec budgets for one
// connection, plus the burst capacity allowed above the steady rate.
type RateLimitConfig struct {
	OpsPerSecond   float64
	OpsBurst       float64
	BytesPerSecond float64
	BytesBurst     float64
}

// DefaultRateLimitConfig is generous enough not to interfere with normal
// typing-speed editing while still bounding a misbehaving client.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		OpsPerSecond:   50,
		OpsBurst:       100,
		BytesPerSecond: 1 << 20,
		BytesBurst:     4 << 20,
	}
}

func newTokenBucket(cfg RateLimitConfig) *tokenBucket {
	return &tokenBucket{
		opsCapacity:   cfg.OpsBurst,
		opsTokens:     cfg.OpsBurst,
		opsRate:       cfg.OpsPerSecond,
		bytesCapacity: cfg.BytesBurst,
		bytesTokens:   cfg.BytesBurst,
		bytesRate:     cfg.BytesPerSecond,
		lastRefill:    time.Now(),
	}
}

// Allow reports whether a frame of size n bytes may be admitted right now,
// consuming one op token and n byte tokens if so.
func (b *tokenBucket) Allow(n int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.lastRefill = now

	b.opsTokens = minF(b.opsCapacity, b.opsTokens+elapsed*b.opsRate)
	b.bytesTokens = minF(b.bytesCapacity, b.bytesTokens+elapsed*b.bytesRate)

	if b.opsTokens < 1 || b.bytesTokens < float64(n) {
		return false
	}
	b.opsTokens--
	b.bytesTokens -= float64(n)
	return true
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
