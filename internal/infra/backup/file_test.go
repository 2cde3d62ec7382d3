package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/vietddude/resync/internal/core/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if d, err := s.Get(ctx, "d1"); err != nil || d != nil {
		t.Fatalf("Get before Put = %+v, %v", d, err)
	}

	if err := s.Put(ctx, &domain.Draft{ID: "d1", Title: "first"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, &domain.Draft{ID: "d1", Title: "second", Tags: []string{"x"}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "second" || len(got.Tags) != 1 {
		t.Errorf("backup = %+v, want the latest copy", got)
	}

	if err := s.Clear(ctx, "d1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := s.Clear(ctx, "d1"); err != nil {
		t.Errorf("second Clear: %v", err)
	}
	if d, _ := s.Get(ctx, "d1"); d != nil {
		t.Error("backup survived Clear")
	}
}

func TestFileStoreKeepsIDsInsideDir(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := s.Put(context.Background(), &domain.Draft{ID: "../escape"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.json")); err == nil {
		t.Error("backup written outside the store dir")
	}
}
