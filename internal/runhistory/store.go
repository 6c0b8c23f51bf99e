// Package runhistory is the optional SQLite-backed run-transcript store
// described in SPEC_FULL.md §9.3. Disabled unless --history-db is set,
// it persists one row per run so --explain-style trend context can read
// back recent runs across scheduled invocations.
package runhistory

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL,
	status TEXT NOT NULL,
	actions TEXT NOT NULL,
	passes INTEGER NOT NULL,
	notes TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Store wraps a SQLite connection holding the run-history table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the run-history database at path,
// mirroring the teacher's store.New single-writer SQLite configuration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runhistory: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("runhistory: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runhistory: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
