// Package submissioncache is a content-addressed, best-effort cache of
// already-uploaded submission media: once a submission's media has been
// uploaded to the chat platform once, later subscriptions matching the
// same (possibly stale) submission can resend it without re-uploading.
package submissioncache

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/3leaps/subwatch/pkg/query"
)

// Entry is a cached reference to media already present on the chat
// platform, enough to resend without a fresh upload.
type Entry struct {
	SubID   query.SubmissionID
	FileRef string
}

// Cache is a sqlite-backed, single-file store, cgo-free via
// modernc.org/sqlite, opened with WAL mode and a busy timeout so the
// watcher's stage workers can share one connection pool without
// SQLITE_BUSY errors under concurrent access.
type Cache struct {
	db *sql.DB
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string) (*Cache, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open submission cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) ensureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS submission_cache (
	sub_id   INTEGER PRIMARY KEY,
	file_ref TEXT NOT NULL
);
`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure submission cache schema: %w", err)
	}
	var count int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("read submission cache schema version: %w", err)
	}
	if count == 0 {
		if _, err := c.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("seed submission cache schema version: %w", err)
		}
	}
	return nil
}

// Load returns the cached entry for id, or ok=false if the id has never
// been cached. A lookup failure is logged by the caller and treated as a
// cache miss; the cache is an optimization, never a correctness
// dependency.
func (c *Cache) Load(ctx context.Context, id query.SubmissionID) (Entry, bool, error) {
	row := c.db.QueryRowContext(ctx, "SELECT file_ref FROM submission_cache WHERE sub_id = ?", uint64(id))
	var ref string
	switch err := row.Scan(&ref); err {
	case nil:
		return Entry{SubID: id, FileRef: ref}, true, nil
	case sql.ErrNoRows:
		return Entry{}, false, nil
	default:
		return Entry{}, false, fmt.Errorf("load submission cache entry for %s: %w", id, err)
	}
}

// Save writes entry, replacing any prior entry for the same id.
func (c *Cache) Save(ctx context.Context, entry Entry) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO submission_cache (sub_id, file_ref) VALUES (?, ?)",
		uint64(entry.SubID), entry.FileRef)
	if err != nil {
		return fmt.Errorf("save submission cache entry for %s: %w", entry.SubID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}
