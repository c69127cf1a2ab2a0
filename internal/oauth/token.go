// Package oauth caches short-lived bearer tokens and implements the two
// grants used by the source and publish clients.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultRefreshSkew is how long before expiry a cached token is replaced.
const DefaultRefreshSkew = 60 * time.Second

// AuthError reports a failure to obtain a token.
type AuthError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication against %s failed with status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication against %s failed: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Token is a bearer token and its lifetime.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// FetchFunc obtains a fresh token.
type FetchFunc func(ctx context.Context) (Token, error)

// TokenCache hands out a cached token until it is about to expire.
type TokenCache struct {
	fetch FetchFunc
	now   func() time.Time
	skew  time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenCache creates a cache around fetch. A nil now uses time.Now.
func NewTokenCache(fetch FetchFunc, now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{fetch: fetch, now: now, skew: DefaultRefreshSkew}
}

// Token returns the cached token, fetching a new one when none is cached or
// the cached one expires within the refresh skew.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiry) {
		return c.token, nil
	}

	tok, err := c.fetch(ctx)
	if err != nil {
		c.token = ""
		return "", err
	}
	c.token = tok.AccessToken
	c.expiry = c.now().Add(tok.ExpiresIn - c.refreshSkew(tok.ExpiresIn))
	return c.token, nil
}

// refreshSkew never exceeds half the token lifetime, so short-lived tokens
// are still reused.
func (c *TokenCache) refreshSkew(lifetime time.Duration) time.Duration {
	if c.skew > lifetime/2 {
		return lifetime / 2
	}
	return c.skew
}

// Invalidate drops the cached token so the next call re-authenticates.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ClientCredentials returns a FetchFunc performing the client-credentials
// grant with HTTP basic client authentication.
func ClientCredentials(httpClient *http.Client, tokenURL, clientID, clientSecret string) FetchFunc {
	return func(ctx context.Context) (Token, error) {
		if clientID == "" || clientSecret == "" {
			return Token{}, &AuthError{Endpoint: tokenURL, Err: fmt.Errorf("client credentials are not configured")}
		}
		form := url.Values{"grant_type": {"client_credentials"}}
		return requestToken(ctx, httpClient, tokenURL, form, func(req *http.Request) {
			req.SetBasicAuth(clientID, clientSecret)
		})
	}
}

// RefreshToken returns a FetchFunc exchanging a long-lived refresh token for
// an access token.
func RefreshToken(httpClient *http.Client, tokenURL, clientID, clientSecret, refreshToken string) FetchFunc {
	return func(ctx context.Context) (Token, error) {
		if clientID == "" || clientSecret == "" || refreshToken == "" {
			return Token{}, &AuthError{Endpoint: tokenURL, Err: fmt.Errorf("OAuth client or refresh token is not configured")}
		}
		form := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refreshToken},
			"client_id":     {clientID},
			"client_secret": {clientSecret},
		}
		return requestToken(ctx, httpClient, tokenURL, form, nil)
	}
}

func requestToken(ctx context.Context, httpClient *http.Client, tokenURL string, form url.Values, decorate func(*http.Request)) (Token, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, &AuthError{Endpoint: tokenURL, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if decorate != nil {
		decorate(req)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Token{}, &AuthError{Endpoint: tokenURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Token{}, &AuthError{Endpoint: tokenURL, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Token{}, &AuthError{Endpoint: tokenURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(body)))}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return Token{}, &AuthError{Endpoint: tokenURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return Token{}, &AuthError{Endpoint: tokenURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("token response has no access_token")}
	}
	return Token{AccessToken: tr.AccessToken, ExpiresIn: time.Duration(tr.ExpiresIn) * time.Second}, nil
}
