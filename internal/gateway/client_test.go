package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"momofeed/internal/feed"
	"momofeed/internal/moderation"
)

func TestRequestUploadSlot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-presigned-url", r.URL.Path)
		assert.Equal(t, "image/png", r.URL.Query().Get("contentType"))
		json.NewEncoder(w).Encode(map[string]string{
			"uploadUrl": "https://bucket.example/put/abc123",
			"fileId":    "abc123",
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	slot, err := c.RequestUploadSlot(context.Background(), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "abc123", slot.FileID)
	assert.Equal(t, "https://bucket.example/put/abc123", slot.UploadURL)
}

func TestRequestUploadSlotGatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	_, err := c.RequestUploadSlot(context.Background(), "image/png")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusInternalServerError, gwErr.StatusCode)
}

func TestPutBytes(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := NewClient("unused", zerolog.Nop())
	payload := []byte("fake png bytes")
	err := c.PutBytes(context.Background(), ts.URL+"/put/abc", "image/png", bytes.NewReader(payload), int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, "image/png", gotContentType)
}

func TestPutBytesUploadError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := NewClient("unused", zerolog.Nop())
	err := c.PutBytes(context.Background(), ts.URL, "image/png", bytes.NewReader(nil), 0)

	var upErr *UploadError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)

	var gwErr *GatewayError
	assert.False(t, errors.As(err, &gwErr), "storage PUT failures are upload errors, not gateway errors")
}

func TestListFeedSince(t *testing.T) {
	var gotAfter string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/list-images", r.URL.Path)
		gotAfter = r.URL.Query().Get("after")
		json.NewEncoder(w).Encode(feed.Page{
			Images: []feed.Item{{ID: "abc123", Status: moderation.StatusApproved, Timestamp: 42.5}},
			Stats:  &feed.Stats{Total: 1, Approved: 1},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())

	page, err := c.ListFeedSince(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, gotAfter, "full fetch omits the cursor")
	require.Len(t, page.Images, 1)
	require.NotNil(t, page.Stats)
	assert.Equal(t, 1, page.Stats.Approved)

	after := 42.5
	_, err = c.ListFeedSince(context.Background(), &after)
	require.NoError(t, err)
	assert.Equal(t, "42.5", gotAfter)
}

func TestGetItemStatusNotReady(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status": nil})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	item, err := c.GetItemStatus(context.Background(), "abc123")
	require.NoError(t, err, "404 is a valid not-ready result, not a transport failure")
	assert.Nil(t, item)
}

func TestGetItemStatusTerminal(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc123", r.URL.Query().Get("key"))
		json.NewEncoder(w).Encode(feed.Item{
			ID:     "abc123",
			Status: moderation.StatusBlurred,
			Reason: moderation.ReasonHumanDetected,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	item, err := c.GetItemStatus(context.Background(), "abc123")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, moderation.StatusBlurred, item.Status)
	assert.Equal(t, moderation.ReasonHumanDetected, item.Reason)
}

func TestGetItemStatusServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, zerolog.Nop())
	_, err := c.GetItemStatus(context.Background(), "abc123")

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadGateway, gwErr.StatusCode)
}
