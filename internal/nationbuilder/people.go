package nationbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// PersonIDByEmail returns the id of the person whose email matches exactly.
// Returns an error wrapping ErrNotFound when no person matches.
func (c *Client) PersonIDByEmail(ctx context.Context, email string) (string, error) {
	var result personEnvelope
	path := "/people/match?" + url.Values{"email": {email}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("matching person by email: %w", ErrNotFound)
		}
		return "", fmt.Errorf("matching person by email: %w", err)
	}

	if result.Person == nil || result.Person.ID == "" {
		return "", errors.New("missing person ID in response")
	}

	return result.Person.ID.String(), nil
}

// PersonIDByExternalID returns the id and email of the single person with the given external id.
func (c *Client) PersonIDByExternalID(ctx context.Context, externalID string) (string, string, error) {
	var result personList
	path := "/people/search?" + url.Values{"external_id": {externalID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", "", fmt.Errorf("searching people by external id: %w", err)
	}

	switch len(result.Results) {
	case 0:
		return "", "", fmt.Errorf("searching people by external id: %w", ErrNotFound)
	case 1:
		p := result.Results[0]
		if p.ID == "" {
			return "", "", errors.New("missing person ID in response")
		}
		return p.ID.String(), p.Email, nil
	default:
		return "", "", fmt.Errorf("searching people by external id: %w", ErrMultipleMatches)
	}
}

// Person returns the person with the given id.
func (c *Client) Person(ctx context.Context, personID string) (*Person, error) {
	var result personEnvelope
	if err := c.do(ctx, http.MethodGet, "/people/"+url.PathEscape(personID), nil, &result); err != nil {
		return nil, fmt.Errorf("getting person: %w", err)
	}
	if result.Person == nil {
		return nil, errors.New("missing person in response")
	}
	return result.Person, nil
}

// CreatePerson creates a person and returns it as stored, including its id and creation time.
func (c *Client) CreatePerson(ctx context.Context, person *Person) (*Person, error) {
	var result personEnvelope
	if err := c.do(ctx, http.MethodPost, "/people", personEnvelope{Person: person}, &result); err != nil {
		return nil, fmt.Errorf("creating person: %w", err)
	}

	if result.Person == nil || result.Person.ID == "" {
		return nil, errors.New("missing person ID in response")
	}

	return result.Person, nil
}

// UpdatePerson updates an existing person by id.
func (c *Client) UpdatePerson(ctx context.Context, personID string, person *Person) error {
	if err := c.do(ctx, http.MethodPut, "/people/"+url.PathEscape(personID), personEnvelope{Person: person}, nil); err != nil {
		return fmt.Errorf("updating person: %w", err)
	}
	return nil
}

// DeletePerson deletes a person by id.
func (c *Client) DeletePerson(ctx context.Context, personID string) error {
	if err := c.do(ctx, http.MethodDelete, "/people/"+url.PathEscape(personID), nil, nil); err != nil {
		return fmt.Errorf("deleting person: %w", err)
	}
	return nil
}
