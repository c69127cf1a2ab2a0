// Package publish uploads videos to YouTube with the resumable upload protocol.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"pod2tube/internal/httpclient"
	"pod2tube/internal/oauth"
)

const (
	DefaultUploadURL   = "https://www.googleapis.com/upload/youtube/v3/videos"
	DefaultChannelsURL = "https://www.googleapis.com/youtube/v3/channels"
	DefaultTokenURL   = "https://oauth2.googleapis.com/token"
	DefaultChunkSize  = 8 << 20 // must stay a multiple of 256 KiB
	DefaultCategoryID = "22"
	WatchURLPrefix    = "https://www.youtube.com/watch?v="

	statusResumeIncomplete = 308
	maxStatusPolls         = 5
)

// WatchURL builds the public URL of an uploaded video.
func WatchURL(videoID string) string {
	return WatchURLPrefix + videoID
}

// Video is the file and metadata to publish.
type Video struct {
	Path          string
	Title         string
	Description   string
	Tags          []string
	CategoryID    string
	PrivacyStatus string
}

// Result identifies the published video.
type Result struct {
	ID    string
	URL   string
	Title string
}

// Config describes how to reach the upload endpoint.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	UploadURL    string
	ChannelsURL  string
	TokenURL     string
	ChunkSize    int64
	HTTPClient   *http.Client
	Now          func() time.Time
}

// Client performs chunked resumable uploads.
type Client struct {
	http      *httpclient.Client
	tokens    *oauth.TokenCache
	uploadURL   string
	channelsURL string
	chunkSize   int64
}

// NewClient creates an uploader authenticated with an OAuth refresh token.
func NewClient(cfg Config) *Client {
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.ChannelsURL == "" {
		cfg.ChannelsURL = DefaultChannelsURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.HTTPClient == nil {
		// Chunks can take a while on slow links; rely on the context instead.
		cfg.HTTPClient = &http.Client{}
	}
	hc := httpclient.NewClient(cfg.HTTPClient, 0)
	return &Client{
		http:      hc,
		tokens:    oauth.NewTokenCache(oauth.RefreshToken(hc.GetUnderlyingClient(), cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken), cfg.Now),
		uploadURL:   cfg.UploadURL,
		channelsURL: cfg.ChannelsURL,
		chunkSize:   cfg.ChunkSize,
	}
}

type snippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type videoResource struct {
	ID      string      `json:"id,omitempty"`
	Snippet snippet     `json:"snippet"`
	Status  videoStatus `json:"status"`
}

// Channel is the channel the refresh token publishes to.
type Channel struct {
	ID    string
	Title string
}

type channelList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
	} `json:"items"`
}

// GetChannel returns the authenticated user's channel.
func (c *Client) GetChannel(ctx context.Context) (*Channel, error) {
	target := c.channelsURL + "?" + url.Values{"part": {"snippet"}, "mine": {"true"}}.Encode()
	resp, err := c.authorized(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("get channel: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var list channelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode channel list: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, fmt.Errorf("no channel found for the authenticated user")
	}
	item := list.Items[0]
	return &Channel{ID: item.ID, Title: item.Snippet.Title}, nil
}

// Upload sends the file at v.Path and returns the hosting video id and
// watch URL.
func (c *Client) Upload(ctx context.Context, v Video) (*Result, error) {
	f, err := os.Open(v.Path)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat video file: %w", err)
	}
	size := info.Size()

	if v.CategoryID == "" {
		v.CategoryID = DefaultCategoryID
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	meta := videoResource{
		Snippet: snippet{Title: v.Title, Description: v.Description, Tags: v.Tags, CategoryID: v.CategoryID},
		Status:  videoStatus{PrivacyStatus: v.PrivacyStatus},
	}

	log.Printf("Starting upload of video: %s (%s)", v.Title, humanize.Bytes(uint64(size)))
	session, err := c.startSession(ctx, meta, size)
	if err != nil {
		return nil, err
	}

	var (
		offset int64
		polls  int
	)
	for {
		resp, err := c.putChunk(ctx, session, f, offset, size)
		if err == nil && resp.StatusCode < 500 {
			done, next, res, err := c.handleUploadResponse(resp, size)
			if err != nil || done {
				return res, err
			}
			offset = next
			polls = 0
			continue
		}

		if err == nil {
			resp.Body.Close()
			err = fmt.Errorf("upload chunk returned status %d", resp.StatusCode)
		}
		polls++
		if polls > maxStatusPolls {
			return nil, fmt.Errorf("upload interrupted: %w", err)
		}
		log.Printf("Upload of %s interrupted at %s: %v; querying upload status", v.Title, humanize.Bytes(uint64(offset)), err)

		resp, qerr := c.queryStatus(ctx, session, size)
		if qerr != nil {
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			continue
		}
		done, next, res, herr := c.handleUploadResponse(resp, size)
		if herr != nil || done {
			return res, herr
		}
		offset = next
	}
}

// handleUploadResponse interprets a chunk or status answer. It reports done
// with the final result, or the offset to continue from.
func (c *Client) handleUploadResponse(resp *http.Response, size int64) (done bool, next int64, res *Result, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var created videoResource
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return true, 0, nil, fmt.Errorf("decode upload response: %w", err)
		}
		if created.ID == "" {
			return true, 0, nil, fmt.Errorf("upload response carries no video id")
		}
		log.Printf("Video upload complete: %s", created.ID)
		return true, 0, &Result{ID: created.ID, URL: WatchURL(created.ID), Title: created.Snippet.Title}, nil
	case resp.StatusCode == statusResumeIncomplete:
		next = nextOffset(resp.Header.Get("Range"))
		if size > 0 {
			log.Printf("Uploaded %d%% (%s of %s)", next*100/size, humanize.Bytes(uint64(next)), humanize.Bytes(uint64(size)))
		}
		return false, next, nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return true, 0, nil, fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

// nextOffset parses a "bytes=0-N" Range header into N+1. A missing header
// means nothing was persisted yet.
func nextOffset(rangeHeader string) int64 {
	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	idx := strings.LastIndex(rangeHeader, "-")
	if idx < 0 {
		return 0
	}
	last, err := strconv.ParseInt(rangeHeader[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return last + 1
}

func (c *Client) startSession(ctx context.Context, meta videoResource, size int64) (string, error) {
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode video metadata: %w", err)
	}
	params := url.Values{"uploadType": {"resumable"}, "part": {"snippet,status"}}
	target := c.uploadURL + "?" + params.Encode()

	resp, err := c.authorized(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))
		req.Header.Set("X-Upload-Content-Type", "video/mp4")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("start upload session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("start upload session: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	session := resp.Header.Get("Location")
	if session == "" {
		return "", fmt.Errorf("start upload session: no Location header in response")
	}
	return session, nil
}

func (c *Client) putChunk(ctx context.Context, session string, f io.ReaderAt, offset, size int64) (*http.Response, error) {
	length := c.chunkSize
	if offset+length > size {
		length = size - offset
	}
	return c.authorized(ctx, func(token string) (*http.Request, error) {
		var body io.Reader = http.NoBody
		if length > 0 {
			body = io.NewSectionReader(f, offset, length)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, body)
		if err != nil {
			return nil, err
		}
		req.ContentLength = length
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "video/mp4")
		if length > 0 {
			req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, size))
		} else {
			req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		}
		return req, nil
	})
}

func (c *Client) queryStatus(ctx context.Context, session string, size int64) (*http.Response, error) {
	return c.authorized(ctx, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, session, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		return req, nil
	})
}

// authorized sends the request built by build, re-authenticating once if the
// access token is rejected.
func (c *Client) authorized(ctx context.Context, build func(token string) (*http.Request, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		req, err := build(token)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || attempt > 0 {
			return resp, nil
		}
		resp.Body.Close()
		c.tokens.Invalidate()
	}
}
