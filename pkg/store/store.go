// Package store defines the pluggable document store contract and provides
// three backends: an in-process map (pkg/store/memory.go, the default when
// no backend is configured), SQLite (pkg/store/sqlite.go), and Redis
// (pkg/store/redis.go).
package store

import "context"

// Store loads and saves a document's text and version. Save is
// last-write-wins guarded by version: every backend here leaves the stored
// document unchanged when asked to save a version older than what is
// already persisted. The session actor is the only writer for a given
// document_id at a time.
type Store interface {
	// Load returns the persisted text and version for documentID, or
	// ("", 0, nil) if the document has never been saved.
	Load(ctx context.Context, documentID string) (text string, version uint64, err error)

	// Save persists text at version for documentID.
	Save(ctx context.Context, documentID string, text string, version uint64) error
}
