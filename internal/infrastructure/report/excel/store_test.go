package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/report"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	store := newStore(t)

	table, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table != nil {
		t.Fatal("expected nil table for missing file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC)

	table := report.NewTable(34, 2026)
	table.AddEntityColumns([]string{"invoice_generic_total", "invoice_generic_date"})
	table.Upsert(report.ThreadAggregate{
		ThreadID: "thread-1",
		Subject:  "Invoice INV-2041",
		Sender:   "billing@example.com",
		Entities: map[string]string{"invoice_generic_total": "1200.00"},
	}, now)

	if err := store.Save(ctx, table); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected table")
	}
	if loaded.Week != 34 || loaded.Year != 2026 {
		t.Fatalf("week/year not recovered: %d/%d", loaded.Week, loaded.Year)
	}

	row := loaded.Get("thread-1")
	if row == nil {
		t.Fatal("expected row for thread-1")
	}
	if row.Subject != "Invoice INV-2041" || row.Sender != "billing@example.com" {
		t.Fatalf("fixed columns not recovered: %+v", row)
	}
	if row.Entities["invoice_generic_total"] != "1200.00" {
		t.Fatalf("entity cell not recovered: %v", row.Entities)
	}
	if row.Entities["invoice_generic_date"] != "" {
		t.Fatalf("expected empty cell, got %q", row.Entities["invoice_generic_date"])
	}
	if row.ExtractedAt != now.Format(report.ExtractionDateLayout) {
		t.Fatalf("extraction date not recovered: %q", row.ExtractedAt)
	}
}

func TestArchiveRenamesCurrentFile(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	table := report.NewTable(33, 2026)
	table.Upsert(report.ThreadAggregate{ThreadID: "thread-1"}, time.Now())
	if err := store.Save(ctx, table); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := store.Archive(ctx, 33, 2026); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if _, err := os.Stat(store.currentPath()); !os.IsNotExist(err) {
		t.Fatal("current file should be gone after archive")
	}
	if _, err := os.Stat(filepath.Join(store.dir, "extracts_week33_2026.xlsx")); err != nil {
		t.Fatalf("expected archive file: %v", err)
	}
}

func TestLoadUnreadableFileReturnsError(t *testing.T) {
	store := newStore(t)

	if err := os.WriteFile(store.currentPath(), []byte("not an xlsx"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	if _, err := store.Load(context.Background()); err == nil {
		t.Fatal("expected error for unreadable workbook")
	}
}

func TestArchiveUnreadableKeepsBackup(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	if err := os.WriteFile(store.currentPath(), []byte("not an xlsx"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	store.now = func() time.Time { return time.Date(2026, 8, 17, 12, 0, 0, 0, time.UTC) }

	if err := store.ArchiveUnreadable(ctx); err != nil {
		t.Fatalf("ArchiveUnreadable: %v", err)
	}

	backup := filepath.Join(store.dir, "current_week_extracts.backup-20260817T120000.xlsx")
	if _, err := os.Stat(backup); err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if _, err := os.Stat(store.currentPath()); !os.IsNotExist(err) {
		t.Fatal("current file should be gone after backup")
	}

	// Backing up when there is nothing to back up is a no-op.
	if err := store.ArchiveUnreadable(ctx); err != nil {
		t.Fatalf("second ArchiveUnreadable: %v", err)
	}
}
