package nationbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Memberships lists a person's memberships.
func (c *Client) Memberships(ctx context.Context, personID string) ([]Membership, error) {
	var result membershipList
	if err := c.do(ctx, http.MethodGet, membershipsPath(personID), nil, &result); err != nil {
		return nil, fmt.Errorf("listing memberships: %w", err)
	}
	return result.Results, nil
}

// CreateMembership adds a membership to a person.
func (c *Client) CreateMembership(ctx context.Context, personID string, membership *Membership) (*Membership, error) {
	var result membershipEnvelope
	body := membershipEnvelope{Membership: membership}
	if err := c.do(ctx, http.MethodPost, membershipsPath(personID), body, &result); err != nil {
		return nil, fmt.Errorf("creating membership: %w", err)
	}
	if result.Membership == nil {
		return nil, errors.New("missing membership in response")
	}
	return result.Membership, nil
}

func membershipsPath(personID string) string {
	return "/people/" + url.PathEscape(personID) + "/memberships"
}
