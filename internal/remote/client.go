// Package remote is the Go client for the vitrina session API.
// It keeps the issued token pair in memory, refreshes the access
// token lazily before requests, and retries once after a 401.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSignedOut is returned for authenticated calls after the session
// could not be refreshed. The caller is expected to re-authenticate.
var ErrSignedOut = errors.New("remote: signed out")

// refreshSkew: токен считается протухшим чуть раньше реального exp,
// чтобы не отправлять запрос, который сервер уже отвергнет.
const refreshSkew = 30 * time.Second

// Principal mirrors the API's user/admin object.
type Principal struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Client talks to a vitrina API server.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time

	// onSignedOut is invoked once per session loss, outside the lock.
	onSignedOut func()

	mu        sync.Mutex
	access    string
	refresh   string
	principal *Principal

	refreshGroup singleflight.Group
}

// Option adjusts client construction.
type Option func(*Client)

// WithHTTPClient substitutes the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSignedOutHook registers a callback fired when the session is
// lost and the client clears its cached tokens.
func WithSignedOutHook(fn func()) Option {
	return func(c *Client) { c.onSignedOut = fn }
}

// WithClock substitutes the expiry clock. Tests only.
func WithClock(fn func() time.Time) Option {
	return func(c *Client) {
		if fn != nil {
			c.now = fn
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Principal returns the cached principal from the last sign-in, if any.
func (c *Client) Principal() (Principal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal == nil {
		return Principal{}, false
	}
	return *c.principal, true
}

// --- session lifecycle ---

type credentials struct {
	FullName string `json:"fullName,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *Client) SignUp(ctx context.Context, username, password, fullName string) (Principal, error) {
	return c.establish(ctx, "/api/v1/signup", "user", credentials{FullName: fullName, Username: username, Password: password})
}

func (c *Client) SignIn(ctx context.Context, username, password string) (Principal, error) {
	return c.establish(ctx, "/api/v1/signin", "user", credentials{Username: username, Password: password})
}

func (c *Client) AdminSignUp(ctx context.Context, username, password, fullName string) (Principal, error) {
	return c.establish(ctx, "/api/v1/admin-signup", "admin", credentials{FullName: fullName, Username: username, Password: password})
}

func (c *Client) AdminSignIn(ctx context.Context, username, password string) (Principal, error) {
	return c.establish(ctx, "/api/v1/admin-login", "admin", credentials{Username: username, Password: password})
}

func (c *Client) establish(ctx context.Context, path, field string, creds credentials) (Principal, error) {
	var out struct {
		Message      string     `json:"message"`
		User         *Principal `json:"user"`
		Admin        *Principal `json:"admin"`
		AccessToken  string     `json:"accessToken"`
		RefreshToken string     `json:"refreshToken"`
	}
	resp, err := c.postJSON(ctx, path, creds, "")
	if err != nil {
		return Principal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Principal{}, apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Principal{}, fmt.Errorf("remote: decode %s response: %w", path, err)
	}
	p := out.User
	if field == "admin" {
		p = out.Admin
	}
	if p == nil || out.AccessToken == "" || out.RefreshToken == "" {
		return Principal{}, fmt.Errorf("remote: incomplete %s response", path)
	}
	c.mu.Lock()
	c.access = out.AccessToken
	c.refresh = out.RefreshToken
	c.principal = p
	c.mu.Unlock()
	return *p, nil
}

// Profile fetches the server-side view of the current principal.
func (c *Client) Profile(ctx context.Context) (Principal, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/api/v1/profile", nil)
	if err != nil {
		return Principal{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Principal{}, apiError(resp)
	}
	var out struct {
		User  *Principal `json:"user"`
		Admin *Principal `json:"admin"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Principal{}, fmt.Errorf("remote: decode profile: %w", err)
	}
	p := out.User
	if p == nil {
		p = out.Admin
	}
	if p == nil {
		return Principal{}, errors.New("remote: empty profile response")
	}
	c.mu.Lock()
	c.principal = p
	c.mu.Unlock()
	return *p, nil
}

// Logout revokes the server-side session and clears the local cache.
// The signed-out hook does not fire for a deliberate logout.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.Do(ctx, http.MethodPost, "/api/v1/logout", nil)
	if err != nil {
		if errors.Is(err, ErrSignedOut) {
			return nil
		}
		return err
	}
	defer resp.Body.Close()
	c.mu.Lock()
	c.access, c.refresh, c.principal = "", "", nil
	c.mu.Unlock()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

// --- authenticated transport ---

// Do issues an authenticated request. When no session is cached the
// request goes out bare. A stale access token is refreshed first; a
// 401 from the server triggers one refresh-and-retry.
func (c *Client) Do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, hasSession, err := c.freshAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(ctx, method, path, body, token)
	if err != nil {
		return nil, err
	}
	if !hasSession || resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Сервер не принял токен, который локально выглядел живым:
	// одна попытка обновиться и повторить.
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	token, err = c.refreshNow(ctx, token)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, method, path, body, token)
}

// freshAccessToken returns an access token believed to be valid,
// refreshing it first when its exp claim is past (or nearly past).
func (c *Client) freshAccessToken(ctx context.Context) (string, bool, error) {
	c.mu.Lock()
	token := c.access
	c.mu.Unlock()
	if token == "" {
		return "", false, nil
	}
	if !tokenStale(token, c.now().Add(refreshSkew)) {
		return token, true, nil
	}
	refreshed, err := c.refreshNow(ctx, token)
	if err != nil {
		return "", true, err
	}
	return refreshed, true, nil
}

// refreshNow rotates the pair via the server. Concurrent callers are
// coalesced into a single refresh request; losers reuse the winner's
// result. stale is the access token the caller saw, so a caller that
// raced a finished refresh does not trigger a second one.
func (c *Client) refreshNow(ctx context.Context, stale string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		c.mu.Lock()
		current, refresh := c.access, c.refresh
		c.mu.Unlock()
		if current != stale && current != "" {
			// somebody already refreshed while we waited
			return current, nil
		}
		if refresh == "" {
			return "", c.signOut()
		}
		resp, err := c.postJSON(ctx, "/api/v1/refresh-token", struct {
			RefreshToken string `json:"refreshToken"`
		}{refresh}, "")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			return "", c.signOut()
		}
		var pair tokenPair
		if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
			return "", fmt.Errorf("remote: decode refresh response: %w", err)
		}
		c.mu.Lock()
		c.access = pair.AccessToken
		c.refresh = pair.RefreshToken
		c.mu.Unlock()
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// signOut drops the cached session and reports ErrSignedOut.
func (c *Client) signOut() error {
	c.mu.Lock()
	hadSession := c.access != "" || c.refresh != ""
	c.access, c.refresh, c.principal = "", "", nil
	c.mu.Unlock()
	if hadSession && c.onSignedOut != nil {
		c.onSignedOut()
	}
	return ErrSignedOut
}

func (c *Client) send(ctx context.Context, method, path string, body any, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, token string) (*http.Response, error) {
	return c.send(ctx, http.MethodPost, path, body, token)
}

func apiError(resp *http.Response) error {
	var out struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Message == "" {
		out.Message = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("remote: %s (status %d)", out.Message, resp.StatusCode)
}

// tokenStale decodes the JWT payload without verifying the signature
// and reports whether exp is at or before deadline. Malformed tokens
// count as stale so the server stays the authority.
func tokenStale(token string, deadline time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return true
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return true
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return true
	}
	return !time.Unix(claims.Exp, 0).After(deadline)
}
