package upload

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"momofeed/internal/feed"
)

// CheckFunc performs one status lookup. A (nil, nil) return means the
// item is not ready yet.
type CheckFunc func(ctx context.Context) (*feed.Item, error)

// pollUntil runs check at a fixed interval until it yields an item
// with a terminal status, the attempt cap is reached, or the context
// is cancelled. Transport errors during an attempt are logged and
// swallowed; a transient failure must not abort an otherwise healthy
// pipeline wait.
//
// The cap expiring is not an error. The item may still resolve later
// and will be picked up by the feed synchronizer.
func pollUntil(ctx context.Context, check CheckFunc, interval time.Duration, maxAttempts int, log zerolog.Logger) (*feed.Item, bool) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(interval):
		}

		item, err := check(ctx)
		if err != nil {
			log.Debug().Err(err).Int("attempt", attempt).Msg("status poll attempt failed")
			continue
		}
		if item != nil && item.Status.Terminal() {
			log.Debug().Int("attempt", attempt).Str("status", string(item.Status)).Msg("terminal status received")
			return item, true
		}
	}
	return nil, false
}
