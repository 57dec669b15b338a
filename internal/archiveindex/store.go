// Package archiveindex is a SQLite-backed metadata index over runs/<run_id>.json
// archives, queried by the Retention Manager (§4.J) and the Reporter (§4.K)
// instead of os.Stat-ing every archive file. Adapted from the teacher's
// internal/persistence: the task+session+conversation store there conflicts
// with spec.md §4.A's flat-file TaskFile being the one canonical store, so
// this index is repurposed to hold only archive metadata.
package archiveindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Index is a SQLite-backed store of archived run metadata.
type Index struct {
	db *sql.DB
}

// New opens (creating if needed) a SQLite database at dbPath, in WAL mode
// with a busy timeout, matching the teacher's NewSQLiteStore connection
// string verbatim.
func New(ctx context.Context, dbPath string) (*Index, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archiveindex: create parent dir: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("archiveindex: open database: %w", err)
	}

	db.SetMaxOpenConns(2)

	idx := &Index{db: db}
	if err := idx.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archiveindex: init schema: %w", err)
	}

	return idx, nil
}

// NewMemory opens an in-memory index, for tests.
func NewMemory(ctx context.Context) (*Index, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("archiveindex: open memory database: %w", err)
	}
	db.SetMaxOpenConns(2)

	idx := &Index{db: db}
	if err := idx.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("archiveindex: init schema: %w", err)
	}

	return idx, nil
}

// Close closes the underlying database connection.
func (idx *Index) Close() error {
	return idx.db.Close()
}
