package rest

import (
	"context"
	"fmt"

	"github.com/vietddude/resync/internal/core/domain"
)

// ProfileRepo implements storage.ProfileRepository over the profiles endpoint.
type ProfileRepo struct {
	c *Client
}

func NewProfileRepo(c *Client) *ProfileRepo {
	return &ProfileRepo{c: c}
}

func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var p domain.Profile
	resp, err := r.c.request(ctx).
		SetHeader("Accept", mediaSingleObject).
		SetQueryParam("id", eq(id)).
		SetResult(&p).
		Get("/profiles")
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return &p, nil
}

func (r *ProfileRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Profile, error) {
	if len(ids) == 0 {
		return []*domain.Profile{}, nil
	}

	profiles := []*domain.Profile{}
	resp, err := r.c.request(ctx).
		SetQueryParam("id", in(ids)).
		SetQueryParam("order", "id").
		SetResult(&profiles).
		Get("/profiles")
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return profiles, nil
}
