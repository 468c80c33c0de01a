package storage

import (
	"context"
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "session.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	return db
}

func TestSQLiteSurvivesReopenWithinSession(t *testing.T) {
	ctx := context.Background()
	db := openTestDatabase(t)

	first, err := NewSQLite(db, "tab-1")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := first.Set(ctx, "roster.drafts.users", []byte(`{"newRecords":[]}`)); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := first.Set(ctx, "roster.drafts.users", []byte(`{"newRecords":[{"id":1}]}`)); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	reopened, err := NewSQLite(db, "tab-1")
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	value, ok, err := reopened.Get(ctx, "roster.drafts.users")
	if err != nil || !ok {
		t.Fatalf("expected stored value, ok=%v err=%v", ok, err)
	}
	if string(value) != `{"newRecords":[{"id":1}]}` {
		t.Fatalf("unexpected value %s", value)
	}

	other, err := NewSQLite(db, "tab-2")
	if err != nil {
		t.Fatalf("failed to create second session: %v", err)
	}
	if _, ok, _ := other.Get(ctx, "roster.drafts.users"); ok {
		t.Fatalf("sessions must not share values")
	}
}

func TestSQLiteEndSessionClearsValues(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLite(openTestDatabase(t), "tab-1")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Set(ctx, "a", []byte("1")); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.EndSession(ctx); err != nil {
		t.Fatalf("end session failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatalf("expected value to be gone after session end")
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	original := []byte("draft")
	if err := store.Set(ctx, "k", original); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	original[0] = 'X'
	value, ok, _ := store.Get(ctx, "k")
	if !ok || string(value) != "draft" {
		t.Fatalf("expected stored copy, got %q", value)
	}
	if err := store.Set(ctx, " ", nil); err == nil {
		t.Fatalf("expected blank key to be rejected")
	}
	_ = store.Delete(ctx, "k")
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected delete to remove value")
	}
}
