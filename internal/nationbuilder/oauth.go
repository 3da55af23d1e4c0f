package nationbuilder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	// defaultTokenDuration applies when the token response has no expires_in.
	defaultTokenDuration = 60 * time.Minute

	// tokenExpiryBuffer is how long before expiry an access token is replaced.
	tokenExpiryBuffer = 5 * time.Minute
)

// TokenStore persists the nation's refresh token between runs.
type TokenStore interface {
	// RefreshToken returns the stored refresh token.
	RefreshToken(ctx context.Context) (string, error)

	// SaveRefreshToken replaces the stored refresh token.
	SaveRefreshToken(ctx context.Context, token string) error
}

// Token is the result of an OAuth token grant.
type Token struct {
	// AccessToken is the bearer token for API calls.
	AccessToken string

	// ExpiresAt is when AccessToken stops being valid.
	ExpiresAt time.Time

	// RefreshToken obtains new access tokens.
	RefreshToken string
}

// usable reports whether the access token can still be sent at now.
func (t *Token) usable(now time.Time) bool {
	return t != nil && t.AccessToken != "" && now.Add(tokenExpiryBuffer).Before(t.ExpiresAt)
}

// tokenSource hands out access tokens, exchanging the stored refresh token when the cached
// one is missing or close to expiry. Refreshes are serialized so concurrent callers share one.
type tokenSource struct {
	clientID     string
	clientSecret string
	http         *resty.Client

	mu sync.Mutex

	// now is the clock used for expiry checks.
	now func() time.Time

	store TokenStore

	// token is the cached grant. Guarded by mu.
	token *Token

	tokenURL string
}

func newTokenSource(cfg Config, client *resty.Client, tokenURL string) *tokenSource {
	return &tokenSource{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         client,
		now:          time.Now,
		store:        cfg.TokenStore,
		tokenURL:     tokenURL,
	}
}

// AccessToken returns a bearer token that is valid for at least tokenExpiryBuffer.
func (s *tokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token.usable(s.now()) {
		return s.token.AccessToken, nil
	}

	token, err := s.refresh(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	return token.AccessToken, nil
}

// refresh runs the refresh_token grant. A rotated refresh token is saved before the new
// access token is used, so a crash cannot strand the nation without a valid refresh token.
func (s *tokenSource) refresh(ctx context.Context) (*Token, error) {
	current, err := s.store.RefreshToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting refresh token: %w", err)
	}
	if current == "" {
		return nil, errors.New("no refresh token stored")
	}

	token, err := requestToken(ctx, s.http, s.tokenURL, s.now(), map[string]string{
		"client_id":     s.clientID,
		"client_secret": s.clientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": current,
	})
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}

	if rotated := token.RefreshToken; rotated != "" && rotated != current {
		if err := s.store.SaveRefreshToken(ctx, rotated); err != nil {
			return nil, fmt.Errorf("saving refresh token: %w", err)
		}
	}
	return token, nil
}

// ExchangeCode trades an authorization code from the browser flow for tokens.
// A nil httpClient uses a client with a 30 second timeout.
func ExchangeCode(
	ctx context.Context,
	httpClient *http.Client,
	tokenURL string,
	clientID string,
	clientSecret string,
	code string,
	redirectURI string,
) (*Token, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return requestToken(ctx, resty.NewWithClient(httpClient), tokenURL, time.Now(), map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code":          code,
		"grant_type":    "authorization_code",
		"redirect_uri":  redirectURI,
	})
}

// requestToken posts a form encoded grant to the token endpoint. Expiry is counted from issued.
func requestToken(
	ctx context.Context,
	client *resty.Client,
	tokenURL string,
	issued time.Time,
	form map[string]string,
) (*Token, error) {
	var body tokenResponse
	resp, err := client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&body).
		Post(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("executing token request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	if body.AccessToken == "" {
		return nil, errors.New("token response missing access token")
	}

	lifetime := defaultTokenDuration
	if body.ExpiresIn > 0 {
		lifetime = time.Duration(body.ExpiresIn) * time.Second
	}

	return &Token{
		AccessToken:  body.AccessToken,
		ExpiresAt:    issued.Add(lifetime),
		RefreshToken: body.RefreshToken,
	}, nil
}
