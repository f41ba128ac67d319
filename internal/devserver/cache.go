package devserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"momofeed/internal/moderation"
)

const (
	cacheKeyPrefix = "imgstatus:"

	// Terminal verdicts are stable; cache them for the presigned URL
	// lifetime. Pending entries may change any second, so they get a
	// short TTL.
	cacheTTLTerminal = time.Hour
	cacheTTLPending  = 5 * time.Second
)

type cachedStatus struct {
	Status moderation.Status `json:"status"`
	Reason moderation.Reason `json:"reason"`
	URL    string            `json:"url"`
}

// StatusCache caches per-object tag lookups and presigned GET URLs,
// keyed by etag. With no redis configured every lookup is a miss;
// callers never need to care.
type StatusCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewStatusCache(rdb *redis.Client, log zerolog.Logger) *StatusCache {
	return &StatusCache{
		rdb: rdb,
		log: log.With().Str("component", "status-cache").Logger(),
	}
}

func (c *StatusCache) Get(ctx context.Context, etag string) (*cachedStatus, bool) {
	if c.rdb == nil {
		return nil, false
	}

	raw, err := c.rdb.Get(ctx, cacheKeyPrefix+etag).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("cache get failed")
		}
		return nil, false
	}

	var entry cachedStatus
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.log.Warn().Err(err).Msg("cache entry corrupt")
		return nil, false
	}
	return &entry, true
}

func (c *StatusCache) Put(ctx context.Context, etag string, entry cachedStatus) {
	if c.rdb == nil {
		return
	}

	ttl := cacheTTLPending
	if entry.Status.Terminal() {
		ttl = cacheTTLTerminal
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKeyPrefix+etag, raw, ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("cache set failed")
	}
}
