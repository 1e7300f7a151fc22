package manifest

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// Export statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusUnchanged = "unchanged"
)

// Entry is one row of the exports table.
type Entry struct {
	Source     string    `json:"source"`
	Title      string    `json:"title"`
	Outputs    []string  `json:"outputs"`
	Checksum   string    `json:"checksum"`
	Tags       []string  `json:"tags"`
	Status     string    `json:"status"`
	Warnings   int       `json:"warnings"`
	Error      string    `json:"error,omitempty"`
	Body       string    `json:"body,omitempty"`
	ExportedAt time.Time `json:"exported_at"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Upsert inserts or replaces an entry and its FTS row within a transaction.
func (db *DB) Upsert(e Entry) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	tagsJSON, _ := json.Marshal(nonNil(e.Tags))
	outputsJSON, _ := json.Marshal(nonNil(e.Outputs))
	if e.Status == "" {
		e.Status = StatusOK
	}
	if e.ExportedAt.IsZero() {
		e.ExportedAt = time.Now().UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO exports (source, title, outputs, checksum, tags, status, warnings, error, body, exported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			title       = excluded.title,
			outputs     = excluded.outputs,
			checksum    = excluded.checksum,
			tags        = excluded.tags,
			status      = excluded.status,
			warnings    = excluded.warnings,
			error       = excluded.error,
			body        = excluded.body,
			exported_at = excluded.exported_at
	`, e.Source, e.Title, string(outputsJSON), e.Checksum, string(tagsJSON), e.Status, e.Warnings, e.Error, e.Body, e.ExportedAt)
	if err != nil {
		return fmt.Errorf("manifest: upsert: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, e.Source, e.Title, e.Body, e.Tags); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete removes an entry and its FTS row.
func (db *DB) Delete(source string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("manifest: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, source)
	_, _ = tx.Exec(`DELETE FROM exports WHERE source = ?`, source)

	return tx.Commit()
}

// Get returns a single entry including its body.
func (db *DB) Get(source string) (*Entry, error) {
	row := db.conn.QueryRow(`
		SELECT source, title, outputs, checksum, tags, status, warnings, error, body, exported_at
		FROM exports WHERE source = ?`, source)
	e, err := scanEntry(row.Scan, true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: get: %w", err)
	}
	return e, nil
}

// List returns entries ordered by source with optional status and tag
// filters, plus the total count matching the filters.
func (db *DB) List(limit, offset int, status, tag string) ([]Entry, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	var where []string
	var args []any
	if status != "" {
		where = append(where, "status = ?")
		args = append(args, status)
	}
	if tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(exports.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM exports`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("manifest: count: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT source, title, outputs, checksum, tags, status, warnings, error, '', exported_at
		FROM exports`+clause+` ORDER BY source LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("manifest: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows.Scan, false)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// AllChecksums returns source → checksum for every entry.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT source, checksum FROM exports`)
	if err != nil {
		return nil, fmt.Errorf("manifest: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var s, cs string
		if err := rows.Scan(&s, &cs); err != nil {
			return nil, err
		}
		out[s] = cs
	}
	return out, rows.Err()
}

// Prune deletes entries whose source is not in keep and returns how many
// were removed.
func (db *DB) Prune(keep map[string]struct{}) (int, error) {
	all, err := db.AllChecksums()
	if err != nil {
		return 0, err
	}
	removed := 0
	for src := range all {
		if _, ok := keep[src]; ok {
			continue
		}
		if err := db.Delete(src); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func scanEntry(scan func(dest ...any) error, withBody bool) (*Entry, error) {
	var e Entry
	var outputs, tags string
	if err := scan(&e.Source, &e.Title, &outputs, &e.Checksum, &tags, &e.Status, &e.Warnings, &e.Error, &e.Body, &e.ExportedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(outputs), &e.Outputs)
	_ = json.Unmarshal([]byte(tags), &e.Tags)
	e.Outputs = nonNil(e.Outputs)
	e.Tags = nonNil(e.Tags)
	if !withBody {
		e.Body = ""
	}
	return &e, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
