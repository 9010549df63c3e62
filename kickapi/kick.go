// Package kickapi contains a minimal client for Kick's public channel endpoint,
// used to poll live status. Kick has no webhook push mechanism, so this is the
// only source of Kick-side truth.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is Kick's public v2 API.
const DefaultBaseURL = "https://kick.com/api/v2"

// DefaultTimeout bounds a poll so a hung upstream cannot stall the status endpoint.
const DefaultTimeout = 5 * time.Second

// StatusError reports a non-2xx response from the Kick API. The poller treats it
// as "channel offline or gone" rather than a transport failure.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kick api returned status %d", e.Code)
}

// Channel is the subset of the channel payload we consume. Livestream is nil
// when the channel is offline.
type Channel struct {
	Slug       string      `json:"slug"`
	Livestream *Livestream `json:"livestream"`
}

type Livestream struct {
	SessionTitle *string `json:"session_title"`
	ViewerCount  *int    `json:"viewer_count"`
	Thumbnail    *struct {
		URL *string `json:"url"`
	} `json:"thumbnail"`
}

// ThumbnailURL returns the thumbnail URL or nil when absent.
func (l *Livestream) ThumbnailURL() *string {
	if l.Thumbnail == nil {
		return nil
	}
	return l.Thumbnail.URL
}

// Client calls the Kick channel endpoint. BaseURL and HTTPClient are injectable
// for tests; zero values use the public API with a bounded-timeout client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

// GetChannel fetches current channel state for a slug (username). A non-2xx
// response is returned as *StatusError so callers can negative-cache it.
func (c *Client) GetChannel(ctx context.Context, slug string) (*Channel, error) {
	if slug == "" {
		return nil, fmt.Errorf("slug empty")
	}
	u := c.base() + "/channels/" + url.PathEscape(slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	var ch Channel
	if err := json.NewDecoder(resp.Body).Decode(&ch); err != nil {
		return nil, fmt.Errorf("decode kick channel: %w", err)
	}
	return &ch, nil
}
