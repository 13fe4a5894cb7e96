package database

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"
)

func newTestDB(t *testing.T) DatabaseService {
	t.Helper()

	ds, err := NewDatabase("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("NewDatabase error: %v", err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestSQLite_DoesDatabaseExist(t *testing.T) {
	ds := newTestDB(t)
	if !ds.DoesDatabaseExist() {
		t.Fatalf("expected DoesDatabaseExist to return true")
	}
}

func TestNewDatabase_Unsupported(t *testing.T) {
	if _, err := NewDatabase("mysql", ""); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestSQLite_CreateAndGetRecord(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	record := &Record{
		SourceKind:    SourceFile,
		FileName:      "scan.png",
		ImageHash:     "abc",
		Engine:        "paddle",
		Preview:       []byte{0x89, 'P'},
		Markdown:      "# Title",
		LocalMarkdown: "# Title (local)",
		ResultJSON:    []byte(`{"pages":[]}`),
	}
	id, err := ds.CreateRecord(ctx, record)
	if err != nil {
		t.Fatalf("CreateRecord error: %v", err)
	}
	if record.ID != id || record.CreatedAt.IsZero() {
		t.Errorf("expected record to be updated with id and timestamp, got %+v", record)
	}

	got, err := ds.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord error: %v", err)
	}
	if got.FileName != "scan.png" || got.SourceKind != SourceFile || got.Engine != "paddle" {
		t.Errorf("unexpected record %+v", got)
	}
	if !bytes.Equal(got.Preview, record.Preview) || string(got.ResultJSON) != `{"pages":[]}` {
		t.Errorf("binary fields mismatch: %+v", got)
	}
	if got.LocalMarkdown != "# Title (local)" {
		t.Errorf("unexpected local markdown %q", got.LocalMarkdown)
	}
	if !got.CreatedAt.Equal(record.CreatedAt) {
		t.Errorf("created_at mismatch: %v vs %v", got.CreatedAt, record.CreatedAt)
	}
}

func TestSQLite_GetRecord_NotFound(t *testing.T) {
	ds := newTestDB(t)
	if _, err := ds.GetRecord(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLite_ListRecords_NewestFirst(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, name := range []string{"old", "middle", "new"} {
		_, err := ds.CreateRecord(ctx, &Record{
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			SourceKind: SourceScreenshot,
			FileName:   name,
			Preview:    []byte("preview"),
			ResultJSON: []byte("{}"),
		})
		if err != nil {
			t.Fatalf("CreateRecord error: %v", err)
		}
	}

	records, err := ds.ListRecords(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecords error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].FileName != "new" || records[1].FileName != "middle" {
		t.Errorf("unexpected order: %s, %s", records[0].FileName, records[1].FileName)
	}
	if records[0].Preview != nil || records[0].ResultJSON != nil {
		t.Errorf("list must not load payload columns")
	}
}

func TestSQLite_FindByHash(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()
	base := time.Now()

	for i, engine := range []string{"paddle", "paddle", "tesseract"} {
		_, err := ds.CreateRecord(ctx, &Record{
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			ImageHash: "h1",
			Engine:    engine,
			Markdown:  engine + string(rune('0'+i)),
		})
		if err != nil {
			t.Fatalf("CreateRecord error: %v", err)
		}
	}

	got, err := ds.FindByHash(ctx, "h1", "paddle")
	if err != nil {
		t.Fatalf("FindByHash error: %v", err)
	}
	if got.Markdown != "paddle1" {
		t.Errorf("expected newest paddle record, got %q", got.Markdown)
	}
	if _, err := ds.FindByHash(ctx, "h2", "paddle"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown hash, got %v", err)
	}
}

func TestSQLite_DeleteRecord(t *testing.T) {
	ds := newTestDB(t)
	ctx := context.Background()

	id, err := ds.CreateRecord(ctx, &Record{FileName: "x"})
	if err != nil {
		t.Fatalf("CreateRecord error: %v", err)
	}
	if err := ds.DeleteRecord(ctx, id); err != nil {
		t.Fatalf("DeleteRecord error: %v", err)
	}
	if _, err := ds.GetRecord(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected record to be gone, got %v", err)
	}
	if err := ds.DeleteRecord(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGenerateID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := generateID()
		if err != nil {
			t.Fatalf("generateID error: %v", err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("id %q is not a v4 uuid", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestRebind(t *testing.T) {
	pg := &sqlStore{dialect: dialect{positional: true}}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("unexpected postgres query %q", got)
	}
	lite := &sqlStore{dialect: dialect{}}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("unexpected sqlite query %q", got)
	}
}
