package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/collabcore/editorcore/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is the default persistent document store backend: a migration
// runner built on an embed.FS of schema files tracked in a
// schema_migrations table, and a document table keyed on id that holds
// (text, version).
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens uri (a sqlite3 DSN, e.g. "file:kolabpad.db") and applies
// pending migrations.
func NewSQLite(uri string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load implements Store.
func (s *SQLite) Load(ctx context.Context, documentID string) (string, uint64, error) {
	var text string
	var version uint64
	err := s.db.QueryRowContext(ctx, "SELECT text, version FROM document WHERE id = ?", documentID).Scan(&text, &version)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, fmt.Errorf("store: load %s: %w", documentID, err)
	}
	return text, version, nil
}

// Save implements Store, upserting by id.
func (s *SQLite) Save(ctx context.Context, documentID string, text string, version uint64) error {
	const query = `
	INSERT INTO document (id, text, version)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		text = excluded.text,
		version = excluded.version
	WHERE excluded.version >= document.version
	`
	_, err := s.db.ExecContext(ctx, query, documentID, text, version)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", documentID, err)
	}
	return nil
}

// Count returns the number of documents in the database.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM document").Scan(&count); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return count, nil
}

// migrate applies pending SQL files from migrations/, tracked in a
// schema_migrations table, in filename order.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			filename TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied := 0
	for i, entry := range entries {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		filename := entry.Name()
		logger.Info("store: applying migration %d: %s", version, filename)

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", filename))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}
		if _, err := db.Exec(string(content)); err != nil {
			return fmt.Errorf("migration %s: %w", filename, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, filename, applied_at) VALUES (?, ?, ?)",
			version, filename, time.Now().Unix(),
		); err != nil {
			return fmt.Errorf("record migration %s: %w", filename, err)
		}
		applied++
	}

	if applied > 0 {
		logger.Info("store: applied %d migration(s)", applied)
	} else {
		logger.Debug("store: schema up to date at version %d", currentVersion)
	}
	return nil
}
