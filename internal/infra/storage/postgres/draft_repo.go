package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/storage"
)

// DraftRepo implements storage.DraftRepository using PostgreSQL.
type DraftRepo struct {
	db *DB
}

// NewDraftRepo creates a new PostgreSQL draft repository.
func NewDraftRepo(db *DB) *DraftRepo {
	return &DraftRepo{db: db}
}

type draftRow struct {
	ID        string         `db:"id"`
	OwnerID   string         `db:"owner_id"`
	Title     string         `db:"title"`
	Body      string         `db:"body"`
	Tags      pq.StringArray `db:"tags"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (r draftRow) toDomain() *domain.Draft {
	return &domain.Draft{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Title:     r.Title,
		Body:      r.Body,
		Tags:      []string(r.Tags),
		UpdatedAt: r.UpdatedAt,
	}
}

// Get retrieves a draft by id.
func (r *DraftRepo) Get(ctx context.Context, id string) (*domain.Draft, error) {
	var row draftRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, owner_id, title, body, tags, updated_at
		FROM drafts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return row.toDomain(), nil
}

// Create inserts a new draft. An existing id violates drafts_pkey.
func (r *DraftRepo) Create(ctx context.Context, d *domain.Draft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, owner_id, title, body, tags, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		d.ID, d.OwnerID, d.Title, d.Body, pq.Array(nonNil(d.Tags)),
	)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of a draft owned by d.OwnerID.
func (r *DraftRepo) Update(ctx context.Context, d *domain.Draft) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE drafts
		SET title = $3, body = $4, tags = $5, updated_at = now()
		WHERE id = $1 AND owner_id = $2`,
		d.ID, d.OwnerID, d.Title, d.Body, pq.Array(nonNil(d.Tags)),
	)
	if err != nil {
		return fmt.Errorf("failed to update draft: %w", err)
	}
	return expectRow(res, "draft "+d.ID)
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
