// Package storage provides token, ledger, credential and archive persistence for cdflow.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoToken is returned when no refresh token has been stored for the nation.
var ErrNoToken = errors.New("no refresh token stored")

// tokenRecord is the stored form of a refresh token. Tokens are bound to the nation they
// were issued for.
type tokenRecord struct {
	NationSlug   string    `json:"nation_slug"`
	RefreshToken string    `json:"refresh_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// decodeTokenRecord parses a stored token for the given nation.
func decodeTokenRecord(data []byte, slug string, source string) (string, error) {
	var rec tokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", fmt.Errorf("decoding token from %s: %w", source, err)
	}
	if rec.NationSlug != slug {
		return "", fmt.Errorf("%s holds a token for nation %q, not %q: %w", source, rec.NationSlug, slug, ErrNoToken)
	}
	if strings.TrimSpace(rec.RefreshToken) == "" {
		return "", fmt.Errorf("%s: %w", source, ErrNoToken)
	}
	return rec.RefreshToken, nil
}

func encodeTokenRecord(slug, token string, now time.Time) ([]byte, error) {
	if token == "" {
		return nil, errors.New("token cannot be empty")
	}
	return json.Marshal(tokenRecord{NationSlug: slug, RefreshToken: token, SavedAt: now.UTC()})
}

// FileTokenStore stores OAuth tokens in a local file.
type FileTokenStore struct {
	now  func() time.Time
	path string
	slug string
}

// NewFileTokenStore creates a new FileTokenStore that reads/writes the token for slug at path.
func NewFileTokenStore(path string, slug string) (*FileTokenStore, error) {
	if path == "" {
		return nil, errors.New("token file path is required")
	}
	if slug == "" {
		return nil, errors.New("nation slug is required")
	}
	return &FileTokenStore{now: time.Now, path: path, slug: slug}, nil
}

// RefreshToken returns the current refresh token from the file.
func (s *FileTokenStore) RefreshToken(_ context.Context) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("token file not found: %s (run 'cdflow auth' to authenticate): %w", s.path, ErrNoToken)
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return decodeTokenRecord(data, s.slug, s.path)
}

// SaveRefreshToken saves the refresh token to the file.
func (s *FileTokenStore) SaveRefreshToken(_ context.Context, token string) error {
	data, err := encodeTokenRecord(s.slug, token, s.now())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	if err := os.WriteFile(s.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	return nil
}
