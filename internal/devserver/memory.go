package devserver

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"momofeed/internal/moderation"
)

// labelsHeader lets a test or a curl invocation feed classifier
// labels to the simulated pipeline alongside the upload bytes.
const labelsHeader = "X-Moderation-Labels"

type memObject struct {
	data         []byte
	contentType  string
	etag         string
	lastModified time.Time
	status       moderation.Status
	reason       moderation.Reason
}

// MemoryBackend keeps the whole bucket in-process. Presigned URLs
// point back at the devserver itself (PUT /dev-upload/:key and
// GET /dev-images/:key), so a client can run the full upload flow
// against a single local process.
type MemoryBackend struct {
	mu        sync.Mutex
	objects   map[string]*memObject
	slots     map[string]time.Time
	baseURL   string
	slotTTL   time.Duration
	autoDelay time.Duration
	log       zerolog.Logger
}

func NewMemoryBackend(baseURL string, slotTTL, autoDelay time.Duration, log zerolog.Logger) *MemoryBackend {
	return &MemoryBackend{
		objects:   make(map[string]*memObject),
		slots:     make(map[string]time.Time),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		slotTTL:   slotTTL,
		autoDelay: autoDelay,
		log:       log.With().Str("component", "memory-backend").Logger(),
	}
}

func (b *MemoryBackend) PresignPut(ctx context.Context, key string) (string, error) {
	b.mu.Lock()
	b.slots[key] = time.Now().Add(b.slotTTL)
	b.mu.Unlock()
	return fmt.Sprintf("%s/dev-upload/%s", b.baseURL, key), nil
}

func (b *MemoryBackend) PresignGet(ctx context.Context, key string) (string, error) {
	return fmt.Sprintf("%s/dev-images/%s", b.baseURL, key), nil
}

func (b *MemoryBackend) List(ctx context.Context) ([]ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ObjectInfo, 0, len(b.objects))
	for key, obj := range b.objects {
		out = append(out, ObjectInfo{Key: key, ETag: obj.etag, LastModified: obj.lastModified})
	}
	return out, nil
}

func (b *MemoryBackend) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key]
	if !ok {
		return nil, nil
	}
	return &ObjectInfo{Key: key, ETag: obj.etag, LastModified: obj.lastModified}, nil
}

func (b *MemoryBackend) Tags(ctx context.Context, key string) (moderation.Status, moderation.Reason, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key]
	if !ok {
		return "", "", errors.New("object not found")
	}
	return obj.status, obj.reason, nil
}

func (b *MemoryBackend) SetTags(ctx context.Context, key string, status moderation.Status, reason moderation.Reason) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[key]
	if !ok {
		return errors.New("object not found")
	}
	obj.status = status
	obj.reason = reason
	// The etag keys the status cache, so any verdict change must
	// produce a distinct value. The full status and reason strings go
	// into the hash alongside the bytes.
	payload := make([]byte, 0, len(obj.data)+len(status)+len(reason))
	payload = append(payload, obj.data...)
	payload = append(payload, string(status)...)
	payload = append(payload, string(reason)...)
	obj.etag = computeETag(payload)
	return nil
}

// HandlePut receives the bytes a presigned upload slot was issued
// for. Expired or unknown slots are rejected the way S3 rejects a
// stale signature.
func (b *MemoryBackend) HandlePut(c *gin.Context) {
	key := c.Param("key")

	b.mu.Lock()
	deadline, ok := b.slots[key]
	b.mu.Unlock()
	if !ok || time.Now().After(deadline) {
		c.JSON(http.StatusForbidden, gin.H{"error": "upload slot expired or unknown"})
		return
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	b.mu.Lock()
	delete(b.slots, key)
	b.objects[key] = &memObject{
		data:         data,
		contentType:  c.ContentType(),
		etag:         computeETag(data),
		lastModified: time.Now().UTC(),
	}
	b.mu.Unlock()

	if raw := c.GetHeader(labelsHeader); raw != "" {
		b.scheduleModeration(key, strings.Split(raw, ","))
	}

	c.Status(http.StatusOK)
}

// HandleGet serves stored bytes; the memory stand-in for a presigned
// GET.
func (b *MemoryBackend) HandleGet(c *gin.Context) {
	key := c.Param("key")

	b.mu.Lock()
	obj, ok := b.objects[key]
	b.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Data(http.StatusOK, obj.contentType, obj.data)
}

// scheduleModeration plays the asynchronous pipeline: after a delay,
// classify the provided labels and tag the object with the verdict.
func (b *MemoryBackend) scheduleModeration(key string, labels []string) {
	time.AfterFunc(b.autoDelay, func() {
		status, reason := moderation.Decide(labels)
		if err := b.SetTags(context.Background(), key, status, reason); err != nil {
			b.log.Warn().Err(err).Str("key", key).Msg("auto moderation tag failed")
			return
		}
		b.log.Info().
			Str("key", key).
			Str("status", string(status)).
			Str("reason", string(reason)).
			Msg("auto moderation applied")
	})
}

// SweepExpiredSlots drops presigned slots that were never claimed.
// Returns the number removed.
func (b *MemoryBackend) SweepExpiredSlots() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	removed := 0
	for key, deadline := range b.slots {
		if now.After(deadline) {
			delete(b.slots, key)
			removed++
		}
	}
	return removed
}

func computeETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
