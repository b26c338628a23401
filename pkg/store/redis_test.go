package store

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestRedis skips unless REDIS_ADDR points at a real server: this
// backend has no in-process fake, so its round-trip behavior is only
// exercised against an actual Redis instance, the way an integration
// suite for a shared external dependency normally would be.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis store integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, "editorcore-test:doc:")
}

func TestRedisLoadMissingDocumentReturnsZeroValue(t *testing.T) {
	r := newTestRedis(t)
	text, version, err := r.Load(context.Background(), "missing-doc")
	require.NoError(t, err)
	require.Equal(t, "", text)
	require.Equal(t, uint64(0), version)
}

func TestRedisSaveThenLoadRoundTrips(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, "doc1", "hello redis", 4))

	text, version, err := r.Load(ctx, "doc1")
	require.NoError(t, err)
	require.Equal(t, "hello redis", text)
	require.Equal(t, uint64(4), version)
}

func TestRedisKeyIsNamespacedByPrefix(t *testing.T) {
	r := &Redis{prefix: "editorcore:doc:"}
	require.Equal(t, "editorcore:doc:abc", r.key("abc"))
}
