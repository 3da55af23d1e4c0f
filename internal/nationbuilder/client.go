package nationbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")

	// ErrMultipleMatches is returned when a lookup that must be unique matches several records.
	ErrMultipleMatches = errors.New("multiple records found")
)

// APIError is a non-2xx response from the API.
type APIError struct {
	// Message is the server's reason or response body.
	Message string

	// StatusCode is the HTTP status code.
	StatusCode int
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Is reports a 404 response as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client is a NationBuilder API client.
type Client struct {
	// baseURL is the base URL for API requests.
	baseURL string

	// config holds the client configuration.
	config Config

	// http issues authenticated API requests.
	http *resty.Client

	// tokens supplies bearer tokens for requests.
	tokens *tokenSource
}

// Config holds the required configuration for creating a Client.
type Config struct {
	// ClientID is the OAuth client identifier.
	ClientID string

	// ClientSecret is the OAuth client secret.
	ClientSecret string

	// Slug is the nation slug, the subdomain of nationbuilder.com.
	Slug string

	// TokenStore provides access to OAuth tokens.
	TokenStore TokenStore
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.ClientID == "" {
		errs = append(errs, errors.New("client ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if c.Slug == "" {
		errs = append(errs, errors.New("nation slug is required"))
	}
	if c.TokenStore == nil {
		errs = append(errs, errors.New("token store is required"))
	}
	return errors.Join(errs...)
}

// NewClient creates a new NationBuilder API client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := defaultOptions(cfg.Slug)
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: o.timeout}
	}

	tokens := newTokenSource(cfg, resty.NewWithClient(httpClient), o.tokenURL)

	api := resty.NewWithClient(httpClient).
		SetBaseURL(o.baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json")
	api.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := tokens.AccessToken(req.Context())
		if err != nil {
			return fmt.Errorf("getting access token: %w", err)
		}
		req.SetAuthToken(token)
		return nil
	})

	return &Client{
		baseURL: o.baseURL,
		config:  cfg,
		http:    api,
		tokens:  tokens,
	}, nil
}

// Slug returns the nation slug the client talks to.
func (c *Client) Slug() string {
	return c.config.Slug
}

// do executes a request and maps non-2xx responses to APIError.
func (c *Client) do(ctx context.Context, method string, path string, body any, result any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}

	if !resp.IsSuccess() {
		return &APIError{Message: errorMessage(resp), StatusCode: resp.StatusCode()}
	}

	return nil
}

// errorMessage extracts a readable reason from an error response.
func errorMessage(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if body != "" {
		return body
	}
	return http.StatusText(resp.StatusCode())
}
