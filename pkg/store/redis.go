package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is an alternative Document Store backend for deployments that
// already run a shared KV store instead of per-node SQLite files.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an already-constructed client. keyPrefix namespaces keys
// (e.g. "editorcore:doc:") so the store can share a Redis instance with
// other subsystems.
func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	return &Redis{client: client, prefix: keyPrefix}
}

type redisDoc struct {
	Text    string `json:"text"`
	Version uint64 `json:"version"`
}

func (r *Redis) key(documentID string) string {
	return r.prefix + documentID
}

// Load implements Store.
func (r *Redis) Load(ctx context.Context, documentID string) (string, uint64, error) {
	raw, err := r.client.Get(ctx, r.key(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("store: redis get %s: %w", documentID, err)
	}

	var doc redisDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", 0, fmt.Errorf("store: redis decode %s: %w", documentID, err)
	}
	return doc.Text, doc.Version, nil
}

// Save implements Store, last-write-wins by version: a Save for a version
// older than the persisted one leaves the stored document unchanged. The
// version check and the write are separate commands, not an atomic
// compare-and-set; the session actor is the only writer per document_id.
func (r *Redis) Save(ctx context.Context, documentID string, text string, version uint64) error {
	_, existing, err := r.Load(ctx, documentID)
	if err != nil {
		return err
	}
	if existing > version {
		return nil
	}
	raw, err := json.Marshal(redisDoc{Text: text, Version: version})
	if err != nil {
		return fmt.Errorf("store: redis encode %s: %w", documentID, err)
	}
	if err := r.client.Set(ctx, r.key(documentID), raw, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %s: %w", documentID, err)
	}
	return nil
}
