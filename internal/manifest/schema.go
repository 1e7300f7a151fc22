// Package manifest records exported notes in SQLite, with optional FTS5
// full-text search over their resolved bodies.
package manifest

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS exports (
	source      TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	outputs     TEXT NOT NULL DEFAULT '[]',
	checksum    TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	status      TEXT NOT NULL DEFAULT 'ok',
	warnings    INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	exported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_exports_status ON exports(status);
`

// DB wraps a sql.DB with manifest-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Store defines the manifest operations consumers depend on.
type Store interface {
	Upsert(e Entry) error
	Get(source string) (*Entry, error)
	List(limit, offset int, status, tag string) ([]Entry, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Prune(keep map[string]struct{}) (int, error)
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
