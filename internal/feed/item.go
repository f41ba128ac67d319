package feed

import "momofeed/internal/moderation"

// Item is a single entry in the photo feed. ID doubles as the
// storage object key assigned at upload time.
type Item struct {
	ID         string            `json:"id"`
	URL        string            `json:"url"`
	Status     moderation.Status `json:"status"`
	Reason     moderation.Reason `json:"reason,omitempty"`
	UploadedAt string            `json:"uploadedAt,omitempty"`
	// Timestamp is epoch seconds of the upload; the feed ordering key.
	Timestamp float64 `json:"timestamp"`
}

// Stats describes the whole remote corpus, not just the items loaded
// client-side. Refreshed wholesale, never derived from the item list.
type Stats struct {
	Total      int `json:"total"`
	Approved   int `json:"approved"`
	Blurred    int `json:"blurred"`
	Blocked    int `json:"blocked"`
	Processing int `json:"processing"`
}

// Page is one list-images response.
type Page struct {
	Images []Item `json:"images"`
	Stats  *Stats `json:"stats,omitempty"`
}
