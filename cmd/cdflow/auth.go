package main

import (
	"cmp"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/peteski22/cdflow/internal/nationbuilder"
)

const (
	authTimeout  = 5 * time.Minute
	callbackPath = "/callback"
)

// authFlow holds what the browser authorization needs.
type authFlow struct {
	authorizeURL string
	clientID     string
	clientSecret string

	// openBrowser shows the authorization page to the user.
	openBrowser func(targetURL string) error

	// port is the local callback server port.
	port int

	store   nationbuilder.TokenStore
	timeout time.Duration

	tokenURL string
}

func (f authFlow) redirectURI() string {
	return "http://" + net.JoinHostPort("localhost", strconv.Itoa(f.port)) + callbackPath
}

func newAuthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize cdflow with NationBuilder",
		Long: "Opens the NationBuilder authorization page in a browser and stores the refresh token " +
			"for the configured nation. import and rollback run this automatically when no token is stored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(root, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			store, err := a.tokenStore(ctx)
			if err != nil {
				return err
			}
			clientID, clientSecret, err := a.credentials(ctx)
			if err != nil {
				return err
			}
			if err := runAuthFlow(ctx, a.out, a.authFlow(store, clientID, clientSecret)); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(a.out)
			_, _ = fmt.Fprintln(a.out, "Next, preview an import with:")
			_, _ = fmt.Fprintln(a.out, "  cdflow import --dry-run")
			return nil
		},
	}
}

// authorizationURL adds the authorization code request parameters to base.
func authorizationURL(base, clientID, redirectURI, state string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing authorize URL: %w", err)
	}
	q := u.Query()
	q.Set("client_id", clientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "code")
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// newOAuthState returns an unguessable value tying the callback to this run.
func newOAuthState() string {
	return rand.Text()
}

// browserLaunchers maps GOOS to the command that opens a URL. Anything else uses xdg-open.
var browserLaunchers = map[string][]string{
	"darwin":  {"open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

func browserCommand(goos, target string) *exec.Cmd {
	argv, ok := browserLaunchers[goos]
	if !ok {
		argv = []string{"xdg-open"}
	}
	args := append(append([]string(nil), argv[1:]...), target)
	return exec.Command(argv[0], args...)
}

// launchBrowser starts the platform browser without waiting for it to exit.
func launchBrowser(target string) error {
	cmd := browserCommand(runtime.GOOS, target)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// runAuthFlow performs the authorization code grant: it waits on a local callback for the
// user's consent, exchanges the code and stores the refresh token.
func runAuthFlow(ctx context.Context, out io.Writer, f authFlow) error {
	state := newOAuthState()
	server, results, err := listenCallback(f.port, state)
	if err != nil {
		return fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL, err := authorizationURL(f.authorizeURL, f.clientID, f.redirectURI(), state)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, "=== NationBuilder Authorization ===")
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Approve cdflow in your browser. If no window opens, visit:\n  %s\n\n", authURL)
	if err := f.openBrowser(authURL); err != nil {
		_, _ = fmt.Fprintf(out, "Could not open a browser: %s\n", err)
	}

	timeout := cmp.Or(f.timeout, authTimeout)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("authorization cancelled: %w", err)
		}
		return fmt.Errorf("authorization timed out after %s", timeout)
	}
	if res.err != nil {
		return fmt.Errorf("authorization failed: %w", res.err)
	}

	_, _ = fmt.Fprintln(out, "Consent received, requesting tokens...")
	token, err := nationbuilder.ExchangeCode(ctx, nil, f.tokenURL, f.clientID, f.clientSecret, res.code, f.redirectURI())
	if err != nil {
		return fmt.Errorf("exchanging code for tokens: %w", err)
	}
	if token.RefreshToken == "" {
		return errors.New("token response did not include a refresh token")
	}
	if err := f.store.SaveRefreshToken(ctx, token.RefreshToken); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Authorization successful!")
	return nil
}

var callbackPage = template.Must(template.New("callback").Parse(
	`<!DOCTYPE html><html><head><title>cdflow</title></head><body>` +
		`<h1>{{.Title}}</h1><p>{{.Message}}</p><p>You can close this window.</p></body></html>`,
))

func renderCallback(w http.ResponseWriter, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = callbackPage.Execute(w, struct{ Title, Message string }{title, message})
}

// callbackResult is the outcome of the browser redirect.
type callbackResult struct {
	code string
	err  error
}

// callbackHandler serves the redirect URI. Only the first outcome is delivered.
type callbackHandler struct {
	once    sync.Once
	results chan<- callbackResult
	state   string
}

func (h *callbackHandler) deliver(res callbackResult) {
	h.once.Do(func() { h.results <- res })
}

func (h *callbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := h.evaluate(r.URL.Query())
	h.deliver(res)

	if res.err != nil {
		renderCallback(w, "Authorization failed", res.err.Error())
		return
	}
	renderCallback(w, "Authorization complete", "cdflow has what it needs. Return to the terminal.")
}

func (h *callbackHandler) evaluate(q url.Values) callbackResult {
	if reason := q.Get("error"); reason != "" {
		return callbackResult{err: fmt.Errorf("%s: %s", reason, q.Get("error_description"))}
	}
	code := q.Get("code")
	if code == "" {
		return callbackResult{err: errors.New("no authorization code received")}
	}
	if subtle.ConstantTimeCompare([]byte(q.Get("state")), []byte(h.state)) != 1 {
		return callbackResult{err: errors.New("state mismatch: possible CSRF attack")}
	}
	return callbackResult{code: code}
}

// listenCallback serves callbackPath on localhost:port until the returned server is shut down.
// The channel receives exactly one result.
func listenCallback(port int, state string) (*http.Server, <-chan callbackResult, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		return nil, nil, fmt.Errorf("callback port %d is already in use: %w", port, err)
	}

	results := make(chan callbackResult, 1)
	handler := &callbackHandler{results: results, state: state}
	mux := http.NewServeMux()
	mux.Handle(callbackPath, handler)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			handler.deliver(callbackResult{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	return server, results, nil
}
