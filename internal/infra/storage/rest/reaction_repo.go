package rest

import (
	"context"
	"fmt"

	"github.com/vietddude/resync/internal/core/domain"
)

// ReactionRepo implements storage.ReactionRepository over the reactions endpoint.
type ReactionRepo struct {
	c *Client
}

func NewReactionRepo(c *Client) *ReactionRepo {
	return &ReactionRepo{c: c}
}

type reactionPayload struct {
	ID       string `json:"id"`
	TargetID string `json:"target_id"`
	UserID   string `json:"user_id"`
	Type     string `json:"type"`
}

func (r *ReactionRepo) GetUserReaction(ctx context.Context, targetID, userID string) (*domain.Reaction, error) {
	rows := []domain.Reaction{}
	resp, err := r.c.request(ctx).
		SetQueryParams(map[string]string{
			"target_id": eq(targetID),
			"user_id":   eq(userID),
			"limit":     "1",
		}).
		SetResult(&rows).
		Get("/reactions")
	if err != nil {
		return nil, fmt.Errorf("get reaction: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *ReactionRepo) Insert(ctx context.Context, rx *domain.Reaction) error {
	resp, err := r.c.request(ctx).
		SetBody(reactionPayload{
			ID:       rx.ID.String(),
			TargetID: rx.TargetID,
			UserID:   rx.UserID,
			Type:     string(rx.Type),
		}).
		Post("/reactions")
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

func (r *ReactionRepo) UpdateType(ctx context.Context, targetID, userID string, t domain.ReactionType) error {
	rows := []domain.Reaction{}
	resp, err := r.c.request(ctx).
		SetHeader("Prefer", preferReturnRows).
		SetQueryParams(map[string]string{
			"target_id": eq(targetID),
			"user_id":   eq(userID),
		}).
		SetBody(map[string]string{"type": string(t)}).
		SetResult(&rows).
		Patch("/reactions")
	if err != nil {
		return fmt.Errorf("update reaction: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if len(rows) == 0 {
		return notFound("reaction")
	}
	return nil
}

func (r *ReactionRepo) Delete(ctx context.Context, targetID, userID string) error {
	rows := []domain.Reaction{}
	resp, err := r.c.request(ctx).
		SetHeader("Prefer", preferReturnRows).
		SetQueryParams(map[string]string{
			"target_id": eq(targetID),
			"user_id":   eq(userID),
		}).
		SetResult(&rows).
		Delete("/reactions")
	if err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if len(rows) == 0 {
		return notFound("reaction")
	}
	return nil
}

// Counts issues one exact-count HEAD request per polarity.
func (r *ReactionRepo) Counts(ctx context.Context, targetID string) (domain.ReactionCounts, error) {
	like, err := r.count(ctx, targetID, domain.ReactionPositive)
	if err != nil {
		return domain.ReactionCounts{}, err
	}
	dislike, err := r.count(ctx, targetID, domain.ReactionNegative)
	if err != nil {
		return domain.ReactionCounts{}, err
	}
	return domain.ReactionCounts{Positive: like, Negative: dislike}, nil
}

func (r *ReactionRepo) count(ctx context.Context, targetID string, t domain.ReactionType) (int, error) {
	resp, err := r.c.request(ctx).
		SetHeader("Prefer", preferCountExact).
		SetQueryParams(map[string]string{
			"target_id": eq(targetID),
			"type":      eq(string(t)),
			"select":    "id",
		}).
		Head("/reactions")
	if err != nil {
		return 0, fmt.Errorf("count reactions: %w", err)
	}
	if resp.IsError() {
		return 0, parseError(resp)
	}
	return countFromRange(resp.Header().Get("Content-Range"))
}
