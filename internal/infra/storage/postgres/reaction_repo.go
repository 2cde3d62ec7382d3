package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vietddude/resync/internal/core/domain"
	"github.com/vietddude/resync/internal/infra/storage"
)

// ReactionRepo implements storage.ReactionRepository using PostgreSQL.
type ReactionRepo struct {
	db *DB
}

// NewReactionRepo creates a new PostgreSQL reaction repository.
func NewReactionRepo(db *DB) *ReactionRepo {
	return &ReactionRepo{db: db}
}

// GetUserReaction returns nil, nil when the user has not reacted.
func (r *ReactionRepo) GetUserReaction(ctx context.Context, targetID, userID string) (*domain.Reaction, error) {
	var rx domain.Reaction
	err := r.db.GetContext(ctx, &rx, `
		SELECT id, target_id, user_id, type, created_at
		FROM reactions
		WHERE target_id = $1 AND user_id = $2`, targetID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reaction: %w", err)
	}
	return &rx, nil
}

// Insert adds a reaction. A second reaction by the same user violates reactions_target_user_key.
func (r *ReactionRepo) Insert(ctx context.Context, rx *domain.Reaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reactions (id, target_id, user_id, type, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		rx.ID, rx.TargetID, rx.UserID, string(rx.Type),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reaction: %w", err)
	}
	return nil
}

// UpdateType switches the reaction polarity.
func (r *ReactionRepo) UpdateType(ctx context.Context, targetID, userID string, t domain.ReactionType) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reactions SET type = $3
		WHERE target_id = $1 AND user_id = $2`,
		targetID, userID, string(t),
	)
	if err != nil {
		return fmt.Errorf("failed to update reaction: %w", err)
	}
	return expectRow(res, "reaction "+targetID+"/"+userID)
}

// Delete removes the user's reaction.
func (r *ReactionRepo) Delete(ctx context.Context, targetID, userID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM reactions WHERE target_id = $1 AND user_id = $2`,
		targetID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete reaction: %w", err)
	}
	return expectRow(res, "reaction "+targetID+"/"+userID)
}

// Counts aggregates reactions for a target.
func (r *ReactionRepo) Counts(ctx context.Context, targetID string) (domain.ReactionCounts, error) {
	var c domain.ReactionCounts
	err := r.db.GetContext(ctx, &c, `
		SELECT
			count(*) FILTER (WHERE type = 'like')    AS positive,
			count(*) FILTER (WHERE type = 'dislike') AS negative
		FROM reactions
		WHERE target_id = $1`, targetID)
	if err != nil {
		return domain.ReactionCounts{}, fmt.Errorf("failed to count reactions: %w", err)
	}
	return c, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
