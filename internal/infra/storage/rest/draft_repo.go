package rest

import (
	"context"
	"fmt"

	"github.com/vietddude/resync/internal/core/domain"
)

// DraftRepo implements storage.DraftRepository over the drafts endpoint.
type DraftRepo struct {
	c *Client
}

func NewDraftRepo(c *Client) *DraftRepo {
	return &DraftRepo{c: c}
}

type draftPayload struct {
	ID      string   `json:"id,omitempty"`
	OwnerID string   `json:"owner_id,omitempty"`
	Title   string   `json:"title"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags"`
}

func payloadOf(d *domain.Draft) draftPayload {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	return draftPayload{ID: d.ID, OwnerID: d.OwnerID, Title: d.Title, Body: d.Body, Tags: tags}
}

func (r *DraftRepo) Get(ctx context.Context, id string) (*domain.Draft, error) {
	var d domain.Draft
	resp, err := r.c.request(ctx).
		SetHeader("Accept", mediaSingleObject).
		SetQueryParam("id", eq(id)).
		SetResult(&d).
		Get("/drafts")
	if err != nil {
		return nil, fmt.Errorf("get draft: %w", err)
	}
	if resp.IsError() {
		return nil, parseError(resp)
	}
	return &d, nil
}

func (r *DraftRepo) Create(ctx context.Context, d *domain.Draft) error {
	resp, err := r.c.request(ctx).
		SetBody(payloadOf(d)).
		Post("/drafts")
	if err != nil {
		return fmt.Errorf("create draft: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	return nil
}

func (r *DraftRepo) Update(ctx context.Context, d *domain.Draft) error {
	body := payloadOf(d)
	body.ID, body.OwnerID = "", ""

	rows := []domain.Draft{}
	resp, err := r.c.request(ctx).
		SetHeader("Prefer", preferReturnRows).
		SetQueryParams(map[string]string{
			"id":       eq(d.ID),
			"owner_id": eq(d.OwnerID),
		}).
		SetBody(body).
		SetResult(&rows).
		Patch("/drafts")
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if len(rows) == 0 {
		return notFound("draft " + d.ID)
	}
	return nil
}
