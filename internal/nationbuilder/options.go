package nationbuilder

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Option configures optional Client settings.
type Option func(*options) error

// options holds optional configuration for creating a Client.
type options struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// httpClient is a custom HTTP client.
	httpClient *http.Client

	// timeout is the HTTP client timeout.
	timeout time.Duration

	// tokenURL is the OAuth token endpoint.
	tokenURL string
}

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(o *options) error {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		o.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client. Overrides WithTimeout.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(o *options) error {
		if httpClient == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		o.httpClient = httpClient
		return nil
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", timeout)
		}
		o.timeout = timeout
		return nil
	}
}

// WithTokenURL sets a custom OAuth token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(o *options) error {
		tokenURL = strings.TrimSpace(tokenURL)
		if tokenURL == "" {
			return fmt.Errorf("token URL cannot be empty")
		}
		o.tokenURL = tokenURL
		return nil
	}
}

// defaultOptions returns options with sensible defaults for the given nation.
func defaultOptions(slug string) *options {
	return &options{
		baseURL:  NationURL(slug) + "/api/v1",
		timeout:  30 * time.Second,
		tokenURL: TokenURL(slug),
	}
}

// NationURL returns the root URL of a nation.
func NationURL(slug string) string {
	return fmt.Sprintf("https://%s.nationbuilder.com", slug)
}

// TokenURL returns the OAuth token endpoint of a nation.
func TokenURL(slug string) string {
	return NationURL(slug) + "/oauth/token"
}

// AuthorizeURL returns the OAuth authorization endpoint of a nation.
func AuthorizeURL(slug string) string {
	return NationURL(slug) + "/oauth/authorize"
}
