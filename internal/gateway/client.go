package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"momofeed/internal/feed"
)

// UploadSlot is a granted presigned upload: where to PUT the bytes
// and the storage key the item will be known by.
type UploadSlot struct {
	UploadURL string `json:"uploadUrl"`
	FileID    string `json:"fileId"`
	Bucket    string `json:"bucket,omitempty"`
}

// Client wraps the four request types the feed consumes. It holds no
// state beyond its configuration.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("component", "gateway").Logger(),
	}
}

// RequestUploadSlot asks the API for a presigned PUT URL for an
// object of the given content type.
func (c *Client) RequestUploadSlot(ctx context.Context, contentType string) (UploadSlot, error) {
	endpoint := fmt.Sprintf("%s/generate-presigned-url?contentType=%s", c.baseURL, url.QueryEscape(contentType))

	var slot UploadSlot
	if err := c.getJSON(ctx, "generate-presigned-url", endpoint, &slot); err != nil {
		return UploadSlot{}, err
	}
	return slot, nil
}

// PutBytes streams the file body straight to storage at the presigned
// URL. The Content-Type header must match what the slot was issued
// for.
func (c *Client) PutBytes(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload to storage: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UploadError{StatusCode: resp.StatusCode}
	}
	return nil
}

// ListFeedSince fetches items newer than the cursor. A nil cursor
// requests the full current feed.
func (c *Client) ListFeedSince(ctx context.Context, after *float64) (feed.Page, error) {
	endpoint := c.baseURL + "/list-images"
	if after != nil {
		endpoint += "?after=" + url.QueryEscape(strconv.FormatFloat(*after, 'f', -1, 64))
	}

	var page feed.Page
	if err := c.getJSON(ctx, "list-images", endpoint, &page); err != nil {
		return feed.Page{}, err
	}
	return page, nil
}

// GetItemStatus looks up the moderation verdict for one storage key.
// A 404 means the item is not ready yet, which is a valid result, not
// a failure: it returns (nil, nil) and the caller keeps polling.
func (c *Client) GetItemStatus(ctx context.Context, key string) (*feed.Item, error) {
	endpoint := fmt.Sprintf("%s/get-image-status?key=%s", c.baseURL, url.QueryEscape(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get-image-status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &GatewayError{Op: "get-image-status", StatusCode: resp.StatusCode}
	}

	var item feed.Item
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &item, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &GatewayError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
