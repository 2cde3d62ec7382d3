package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/resync/internal/core/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultBackupTTL bounds how long an unsaved draft copy survives.
const DefaultBackupTTL = 7 * 24 * time.Hour

// DraftBackupRepo implements storage.DraftBackupRepository using Redis.
type DraftBackupRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewDraftBackupRepo creates a Redis-backed draft backup store.
func NewDraftBackupRepo(client *Client, ttl time.Duration) *DraftBackupRepo {
	if ttl <= 0 {
		ttl = DefaultBackupTTL
	}
	return &DraftBackupRepo{rdb: client.rdb, ttl: ttl}
}

func backupKey(id string) string {
	return fmt.Sprintf("draft_backup:%s", id)
}

// Put stores d, replacing any earlier copy and resetting the TTL.
func (r *DraftBackupRepo) Put(ctx context.Context, d *domain.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}
	if err := r.rdb.Set(ctx, backupKey(d.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set draft backup: %w", err)
	}
	return nil
}

// Get returns nil, nil when there is no copy.
func (r *DraftBackupRepo) Get(ctx context.Context, id string) (*domain.Draft, error) {
	data, err := r.rdb.Get(ctx, backupKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft backup: %w", err)
	}

	var d domain.Draft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft backup: %w", err)
	}
	return &d, nil
}

// Clear removes the copy.
func (r *DraftBackupRepo) Clear(ctx context.Context, id string) error {
	return r.rdb.Del(ctx, backupKey(id)).Err()
}
