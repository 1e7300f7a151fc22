package manifest

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "manifest.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM exports`).Scan(&count); err != nil {
		t.Fatalf("exports table missing: %v", err)
	}
}

func TestUpsertAndGet(t *testing.T) {
	db := testDB(t)
	e := Entry{
		Source:   "pages/Hello.md",
		Title:    "Hello",
		Outputs:  []string{"work/Hello.md"},
		Checksum: "abc123",
		Tags:     []string{"work", "go"},
		Warnings: 1,
		Body:     "hello world",
	}
	if err := db.Upsert(e); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := db.Get("pages/Hello.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Hello" || got.Checksum != "abc123" || got.Status != StatusOK {
		t.Errorf("entry = %+v", got)
	}
	if len(got.Outputs) != 1 || got.Outputs[0] != "work/Hello.md" {
		t.Errorf("outputs = %v", got.Outputs)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "work" {
		t.Errorf("tags = %v", got.Tags)
	}
	if got.Body != "hello world" {
		t.Errorf("body = %q", got.Body)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get("missing.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Entry{Source: "a.md", Title: "Old", Checksum: "1"})
	_ = db.Upsert(Entry{Source: "a.md", Title: "New", Checksum: "2", Status: StatusFailed, Error: "boom"})

	got, err := db.Get("a.md")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New" || got.Checksum != "2" || got.Status != StatusFailed || got.Error != "boom" {
		t.Errorf("entry = %+v", got)
	}
}

func TestList_FiltersAndCounts(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Entry{Source: "b.md", Tags: []string{"x"}})
	_ = db.Upsert(Entry{Source: "a.md", Tags: []string{"y"}})
	_ = db.Upsert(Entry{Source: "c.md", Tags: []string{"x"}, Status: StatusFailed})

	all, total, err := db.List(0, 0, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 3 || len(all) != 3 || all[0].Source != "a.md" {
		t.Errorf("list = %+v total=%d", all, total)
	}

	tagged, total, err := db.List(10, 0, "", "x")
	if err != nil {
		t.Fatalf("List tag: %v", err)
	}
	if total != 2 || len(tagged) != 2 {
		t.Errorf("tag filter = %+v total=%d", tagged, total)
	}

	failed, total, _ := db.List(10, 0, StatusFailed, "")
	if total != 1 || failed[0].Source != "c.md" {
		t.Errorf("status filter = %+v", failed)
	}
}

func TestPrune(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Entry{Source: "keep.md", Checksum: "1"})
	_ = db.Upsert(Entry{Source: "gone.md", Checksum: "2"})

	n, err := db.Prune(map[string]struct{}{"keep.md": {}})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if _, err := db.Get("gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("pruned entry still present")
	}
	if e, err := db.Get("keep.md"); err != nil || e.Checksum != "1" {
		t.Error("kept entry missing")
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Entry{Source: "s.md", Title: "Search Me", Checksum: "1", Body: "uniqueword appears here"})

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Source != "s.md" {
		t.Errorf("search results = %+v, want 1 hit for s.md", results)
	}
}
