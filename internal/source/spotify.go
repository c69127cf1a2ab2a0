// Package source talks to the Spotify Web API to list podcast episodes.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pod2tube/internal/httpclient"
	"pod2tube/internal/oauth"
)

const (
	DefaultAPIBase  = "https://api.spotify.com/v1"
	DefaultTokenURL = "https://accounts.spotify.com/api/token"
	DefaultMarket   = "US"
)

// Episode is one item of a show's catalog.
type Episode struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	AudioPreviewURL string       `json:"audio_preview_url"`
	ReleaseDate     string       `json:"release_date"`
	DurationMS      int64        `json:"duration_ms"`
	ExternalURLs    ExternalURLs `json:"external_urls"`
}

// ExternalURLs holds public links to an object.
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// Show is the podcast itself.
type Show struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Publisher    string       `json:"publisher"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

type episodePage struct {
	Items []Episode `json:"items"`
	Total int       `json:"total"`
	Next  *string   `json:"next"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("spotify %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Config describes how to reach the API.
type Config struct {
	ClientID          string
	ClientSecret      string
	APIBase           string
	TokenURL          string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Now               func() time.Time
}

// Client is a thin request wrapper around the Spotify Web API.
type Client struct {
	http    *httpclient.Client
	tokens  *oauth.TokenCache
	apiBase string
}

// NewClient creates a client that authenticates with the client-credentials grant.
func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	hc := httpclient.NewClient(cfg.HTTPClient, cfg.RequestsPerSecond)
	return &Client{
		http:    hc,
		tokens:  oauth.NewTokenCache(oauth.ClientCredentials(hc.GetUnderlyingClient(), cfg.TokenURL, cfg.ClientID, cfg.ClientSecret), cfg.Now),
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
	}
}

// ListEpisodes returns up to limit of the show's most recent episodes in the
// order the API returns them.
func (c *Client) ListEpisodes(ctx context.Context, showID string, limit int) ([]Episode, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(limit)},
		"market": {DefaultMarket},
	}
	var page episodePage
	if err := c.get(ctx, "shows/"+url.PathEscape(showID)+"/episodes", params, &page); err != nil {
		return nil, fmt.Errorf("could not retrieve podcast episodes: %w", err)
	}
	return page.Items, nil
}

// GetEpisode returns the full detail of one episode.
func (c *Client) GetEpisode(ctx context.Context, episodeID string) (*Episode, error) {
	var ep Episode
	if err := c.get(ctx, "episodes/"+url.PathEscape(episodeID), url.Values{"market": {DefaultMarket}}, &ep); err != nil {
		return nil, fmt.Errorf("could not retrieve episode information: %w", err)
	}
	return &ep, nil
}

// GetShow returns information about a show.
func (c *Client) GetShow(ctx context.Context, showID string) (*Show, error) {
	var show Show
	if err := c.get(ctx, "shows/"+url.PathEscape(showID), url.Values{"market": {DefaultMarket}}, &show); err != nil {
		return nil, fmt.Errorf("could not retrieve podcast information: %w", err)
	}
	return &show, nil
}

// get performs an authenticated GET. An unauthorized answer invalidates the
// cached token and the request is repeated exactly once.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	u := c.apiBase + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	resp, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		log.Printf("Spotify token rejected for %s, re-authenticating", endpoint)
		c.tokens.Invalidate()
		resp, err = c.do(ctx, u)
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusUnauthorized {
			return &oauth.AuthError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: apiErr}
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(ctx, req)
}
