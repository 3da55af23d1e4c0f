package nationbuilder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// CreateDonation creates a donation and returns it as stored.
func (c *Client) CreateDonation(ctx context.Context, donation *Donation) (*Donation, error) {
	var result donationEnvelope
	if err := c.do(ctx, http.MethodPost, "/donations", donationEnvelope{Donation: donation}, &result); err != nil {
		return nil, fmt.Errorf("creating donation: %w", err)
	}

	if result.Donation == nil || result.Donation.ID == "" {
		return nil, errors.New("missing donation ID in response")
	}

	return result.Donation, nil
}

// DeleteDonation deletes a donation by id.
func (c *Client) DeleteDonation(ctx context.Context, donationID string) error {
	if err := c.do(ctx, http.MethodDelete, "/donations/"+url.PathEscape(donationID), nil, nil); err != nil {
		return fmt.Errorf("deleting donation: %w", err)
	}
	return nil
}

// DonationIDByCheckNumber returns the id of a donation that succeeded on date (YYYY-MM-DD)
// with the given check number. Returns an error wrapping ErrNotFound when none matches.
func (c *Client) DonationIDByCheckNumber(ctx context.Context, checkNumber string, date string) (string, error) {
	var result donationList
	path := "/donations/search?" + url.Values{"succeeded_at": {date}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", fmt.Errorf("searching donations: %w", err)
	}

	for _, raw := range result.Results {
		var d Donation
		if err := json.Unmarshal(raw, &d); err != nil {
			return "", fmt.Errorf("decoding donation: %w", err)
		}
		if d.CheckNumber == checkNumber {
			return d.ID.String(), nil
		}
	}

	return "", fmt.Errorf("no donation with check number %s: %w", checkNumber, ErrNotFound)
}

// DetectCustomFields reports which of the named donation fields the nation exposes, by
// inspecting the most recent donation. Every name maps to false when no donation exists.
func (c *Client) DetectCustomFields(ctx context.Context, names []string) (map[string]bool, error) {
	var result donationList
	if err := c.do(ctx, http.MethodGet, "/donations?limit=1", nil, &result); err != nil {
		return nil, fmt.Errorf("detecting custom donation fields: %w", err)
	}

	available := make(map[string]bool, len(names))
	for _, name := range names {
		available[name] = false
	}
	if len(result.Results) == 0 {
		return available, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result.Results[0], &fields); err != nil {
		return nil, fmt.Errorf("decoding donation: %w", err)
	}
	for _, name := range names {
		_, available[name] = fields[name]
	}

	return available, nil
}
