package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/resync/internal/core/domain"
)

func TestDraftBackupRoundTrip(t *testing.T) {
	url := os.Getenv("RESYNC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test. Set RESYNC_TEST_REDIS_URL to run.")
	}

	client, err := NewClient(Config{URL: url})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	repo := NewDraftBackupRepo(client, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()

	if d, err := repo.Get(ctx, id); err != nil || d != nil {
		t.Fatalf("Get before Put = %+v, %v", d, err)
	}

	want := &domain.Draft{ID: id, OwnerID: "u1", Title: "t", Body: "b", Tags: []string{"go"}}
	if err := repo.Put(ctx, want); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Title != "t" || len(got.Tags) != 1 {
		t.Errorf("backup = %+v", got)
	}

	if err := repo.Clear(ctx, id); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if d, _ := repo.Get(ctx, id); d != nil {
		t.Error("backup survived Clear")
	}
}

func TestBackupKey(t *testing.T) {
	if got := backupKey("d1"); got != "draft_backup:d1" {
		t.Errorf("backupKey = %q", got)
	}
}
