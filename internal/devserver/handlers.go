package devserver

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"momofeed/internal/config"
	"momofeed/internal/feed"
	"momofeed/internal/moderation"
)

// HandlerSet implements the API surface the feed client consumes:
// presigned-URL issuance, the feed listing with aggregate stats, the
// per-item status lookup, and a moderation endpoint standing in for
// the tagging pipeline.
type HandlerSet struct {
	log     zerolog.Logger
	cfg     *config.AppConfig
	backend Backend
	cache   *StatusCache
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, backend Backend, cache *StatusCache) HandlerSet {
	return HandlerSet{
		log:     log,
		cfg:     cfg,
		backend: backend,
		cache:   cache,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/generate-presigned-url", h.GeneratePresignedURL)
	router.GET("/get-image-status", h.GetImageStatus)
	router.GET("/list-images", h.ListImages)
	router.POST("/moderate-image", h.ModerateImage)
}

func (h HandlerSet) GeneratePresignedURL(c *gin.Context) {
	contentType := c.DefaultQuery("contentType", "image/jpeg")
	fileID := uuid.NewString()

	uploadURL, err := h.backend.PresignPut(c.Request.Context(), fileID)
	if err != nil {
		h.log.Error().Err(err).Msg("presign put failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate upload URL"})
		return
	}

	h.log.Debug().Str("file_id", fileID).Str("content_type", contentType).Msg("upload slot issued")

	c.JSON(http.StatusOK, gin.H{
		"uploadUrl": uploadURL,
		"fileId":    fileID,
		"bucket":    h.cfg.Storage.Bucket,
	})
}

func (h HandlerSet) GetImageStatus(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	ctx := c.Request.Context()

	info, err := h.backend.Stat(ctx, key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("stat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if info == nil {
		// Not an error from the client's point of view: the pipeline
		// is asynchronous and the item may simply not exist yet.
		c.JSON(http.StatusNotFound, gin.H{"status": nil, "error": "image not found or not ready"})
		return
	}

	// Status checks bypass the cache: tags may change any second
	// while the uploader is actively polling.
	status, reason, err := h.backend.Tags(ctx, key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": nil, "error": "image not found or not ready"})
		return
	}

	url, err := h.backend.PresignGet(ctx, key)
	if err != nil {
		h.log.Error().Err(err).Str("key", key).Msg("presign get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         key,
		"status":     nullableStatus(status),
		"reason":     nullableReason(reason),
		"url":        url,
		"uploadedAt": info.LastModified.UTC().Format(time.RFC3339),
		"timestamp":  epochSeconds(info.LastModified),
	})
}

func (h HandlerSet) ListImages(c *gin.Context) {
	ctx := c.Request.Context()

	objects, err := h.backend.List(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("list objects failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list images"})
		return
	}

	// Newest first.
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	var after *float64
	if raw := c.Query("after"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			after = &parsed
		}
		// An unparsable cursor is ignored and the full feed returned,
		// which errs on the side of showing items.
	}

	stats := feed.Stats{}
	images := make([]feed.Item, 0, len(objects))

	for _, obj := range objects {
		stats.Total++

		entry, ok := h.cache.Get(ctx, obj.ETag)
		if !ok {
			status, reason, err := h.backend.Tags(ctx, obj.Key)
			if err != nil {
				status, reason = "", ""
			}
			url, err := h.backend.PresignGet(ctx, obj.Key)
			if err != nil {
				h.log.Warn().Err(err).Str("key", obj.Key).Msg("presign get failed during listing")
				continue
			}
			entry = &cachedStatus{Status: status, Reason: reason, URL: url}
			h.cache.Put(ctx, obj.ETag, *entry)
		}

		switch entry.Status {
		case moderation.StatusApproved:
			stats.Approved++
		case moderation.StatusBlurred:
			stats.Blurred++
		case moderation.StatusBlocked:
			stats.Blocked++
		case moderation.StatusProcessing:
			stats.Processing++
		}

		// Untagged, still-processing and blocked objects never enter
		// the feed payload.
		if entry.Status == "" || entry.Status == moderation.StatusBlocked || entry.Status == moderation.StatusProcessing {
			continue
		}

		ts := epochSeconds(obj.LastModified)
		if after != nil && ts <= *after {
			continue
		}

		images = append(images, feed.Item{
			ID:         obj.Key,
			URL:        entry.URL,
			Status:     entry.Status,
			Reason:     entry.Reason,
			UploadedAt: obj.LastModified.UTC().Format(time.RFC3339),
			Timestamp:  ts,
		})
	}

	c.JSON(http.StatusOK, feed.Page{Images: images, Stats: &stats})
}

type moderateRequest struct {
	Key    string            `json:"key" binding:"required"`
	Status moderation.Status `json:"status" binding:"required"`
	Reason moderation.Reason `json:"reason"`
}

// ModerateImage is the dev stand-in for the tagging pipeline: it
// writes a verdict onto an existing object.
func (h HandlerSet) ModerateImage(c *gin.Context) {
	var req moderateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Terminal() && req.Status != moderation.StatusProcessing {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}
	ctx := c.Request.Context()

	info, err := h.backend.Stat(ctx, req.Key)
	if err != nil {
		h.log.Error().Err(err).Str("key", req.Key).Msg("stat failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if info == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}

	if err := h.backend.SetTags(ctx, req.Key, req.Status, req.Reason); err != nil {
		h.log.Error().Err(err).Str("key", req.Key).Msg("set tags failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to tag image"})
		return
	}

	h.log.Info().
		Str("key", req.Key).
		Str("status", string(req.Status)).
		Str("reason", string(req.Reason)).
		Msg("image moderated")

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h HandlerSet) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"environment": h.cfg.Environment,
	})
}

func nullableStatus(s moderation.Status) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableReason(r moderation.Reason) any {
	if r == "" {
		return nil
	}
	return r
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
