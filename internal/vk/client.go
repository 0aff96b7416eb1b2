// Package vk fetches engagement counters for wall posts from the VK API.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pulsewatch/pulsewatch/internal/store"
)

// Config holds the VK API endpoint settings.
type Config struct {
	// Token is the access token appended to every request.
	Token string

	// Domain is the full URL of the wall.getById endpoint.
	Domain string

	// Version is the VK API version string, e.g. "5.199".
	Version string

	// Timeout bounds one API call. Keep it comfortably below the poll
	// interval so a hung call cannot stall a tick indefinitely.
	Timeout time.Duration
}

// Client is a minimal VK API client for reading post stats.
type Client struct {
	cfg   Config
	httpc *http.Client
}

// New creates a Client with a bounded HTTP timeout.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}
}

// Wire shapes for the wall.getById response. Only the counter fields are
// extracted; everything else is ignored.
type counter struct {
	Count int64 `json:"count"`
}

type wallPost struct {
	Likes    counter `json:"likes"`
	Comments counter `json:"comments"`
	Reposts  counter `json:"reposts"`
	Views    counter `json:"views"`
}

type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

type apiResponse struct {
	Response []wallPost `json:"response"`
	Error    *apiError  `json:"error"`
}

// Stats fetches the current counters for postID (e.g. "-1_45616"). A post
// missing from the API response yields all-zero stats, mirroring VK's
// behaviour of returning an empty response array for deleted or private
// posts; callers decide what all-zero means in their context.
func (c *Client) Stats(ctx context.Context, postID string) (store.Stats, error) {
	u := fmt.Sprintf("%s?access_token=%s&v=%s&posts=%s",
		c.cfg.Domain,
		url.QueryEscape(c.cfg.Token),
		url.QueryEscape(c.cfg.Version),
		url.QueryEscape(postID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return store.Stats{}, fmt.Errorf("vk: build request for post %s: %w", postID, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return store.Stats{}, fmt.Errorf("vk: fetch post %s: %w", postID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return store.Stats{}, fmt.Errorf("vk: fetch post %s: unexpected status %d", postID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return store.Stats{}, fmt.Errorf("vk: read response for post %s: %w", postID, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return store.Stats{}, fmt.Errorf("vk: parse response for post %s: %w", postID, err)
	}

	if parsed.Error != nil {
		return store.Stats{}, fmt.Errorf("vk: api error %d for post %s: %s",
			parsed.Error.Code, postID, parsed.Error.Message)
	}

	if len(parsed.Response) == 0 {
		return store.Stats{}, nil
	}

	p := parsed.Response[0]
	return store.Stats{
		Likes:    p.Likes.Count,
		Comments: p.Comments.Count,
		Reposts:  p.Reposts.Count,
		Views:    p.Views.Count,
	}, nil
}
