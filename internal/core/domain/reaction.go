package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ReactionType string

const (
	ReactionNone     ReactionType = "none"
	ReactionPositive ReactionType = "like"
	ReactionNegative ReactionType = "dislike"
)

// ParseReactionType accepts the stored names plus a few aliases used on the CLI.
func ParseReactionType(s string) (ReactionType, error) {
	switch s {
	case "", "none":
		return ReactionNone, nil
	case "like", "up", "positive", "+":
		return ReactionPositive, nil
	case "dislike", "down", "negative", "-":
		return ReactionNegative, nil
	default:
		return "", fmt.Errorf("unknown reaction type %q", s)
	}
}

func (t ReactionType) Valid() bool {
	return t == ReactionNone || t == ReactionPositive || t == ReactionNegative
}

// Reaction is one user's reaction row for a target (post, comment).
// At most one row exists per (TargetID, UserID).
type Reaction struct {
	ID        uuid.UUID    `json:"id"         db:"id"`
	TargetID  string       `json:"target_id"  db:"target_id"`
	UserID    string       `json:"user_id"    db:"user_id"`
	Type      ReactionType `json:"type"       db:"type"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// ReactionCounts are the server-side aggregates for a target.
type ReactionCounts struct {
	Positive int `json:"positive" db:"positive"`
	Negative int `json:"negative" db:"negative"`
}

// ReactionView is what a refresh returns: the viewer's own reaction plus the counts.
type ReactionView struct {
	Type   ReactionType
	Counts ReactionCounts
}

// ReactionState is the locally displayed reaction state.
type ReactionState struct {
	Type          ReactionType
	PositiveCount int
	NegativeCount int
	// Pending is set while a local mutation has not been confirmed by the server.
	Pending bool
}

func (s ReactionState) Counts() ReactionCounts {
	return ReactionCounts{Positive: s.PositiveCount, Negative: s.NegativeCount}
}
