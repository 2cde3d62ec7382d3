package storage

import (
	"context"
	"errors"

	"github.com/vietddude/resync/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist
	ErrNotFound = errors.New("not found")
)

// NotFoundCode is the code remote stores use for "no rows".
const NotFoundCode = "PGRST116"

// ProfileRepository reads public profiles
type ProfileRepository interface {
	// GetByID returns ErrNotFound when the profile is missing
	GetByID(ctx context.Context, id string) (*domain.Profile, error)

	// ListByIDs returns the profiles that exist; missing ids are skipped
	ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error)
}

// ReactionRepository handles reaction rows and their aggregates
type ReactionRepository interface {
	// GetUserReaction returns nil, nil when the user has no reaction on the target
	GetUserReaction(ctx context.Context, targetID, userID string) (*domain.Reaction, error)

	// Insert fails with a unique violation if the user already reacted
	Insert(ctx context.Context, r *domain.Reaction) error

	// UpdateType switches the polarity of an existing reaction
	UpdateType(ctx context.Context, targetID, userID string, t domain.ReactionType) error

	// Delete removes the user's reaction; ErrNotFound if there was none
	Delete(ctx context.Context, targetID, userID string) error

	// Counts aggregates reactions for a target
	Counts(ctx context.Context, targetID string) (domain.ReactionCounts, error)
}

// DraftRepository persists drafts
type DraftRepository interface {
	// Get returns ErrNotFound when the draft was never saved
	Get(ctx context.Context, id string) (*domain.Draft, error)

	// Create fails with a unique violation if the id exists
	Create(ctx context.Context, d *domain.Draft) error

	// Update overwrites the editable fields; ErrNotFound if missing
	Update(ctx context.Context, d *domain.Draft) error
}

// DraftBackupRepository keeps a local copy of a draft that could not be saved
type DraftBackupRepository interface {
	// Put stores the copy, replacing any earlier one
	Put(ctx context.Context, d *domain.Draft) error

	// Get returns nil, nil when there is no copy
	Get(ctx context.Context, id string) (*domain.Draft, error)

	// Clear removes the copy; no error if absent
	Clear(ctx context.Context, id string) error
}
