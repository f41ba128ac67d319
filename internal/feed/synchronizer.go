package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lister is the slice of the remote gateway the synchronizer needs.
type Lister interface {
	ListFeedSince(ctx context.Context, after *float64) (Page, error)
}

// Synchronizer keeps the store current by fetching items newer than
// the latest known one on a fixed interval. Fetch failures are logged
// and skipped; only Stop ends the loop.
type Synchronizer struct {
	client   Lister
	store    *Store
	interval time.Duration
	log      zerolog.Logger

	// OnNewItems, when set, receives the items a tick actually added.
	// Merge-updates to already-known items do not trigger it. Set
	// before Start.
	OnNewItems func(items []Item)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSynchronizer(client Lister, store *Store, interval time.Duration, log zerolog.Logger) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		client:   client,
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "synchronizer").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Bootstrap performs the initial full fetch. Unlike tick failures the
// error is returned so the caller can surface it; the feed simply
// stays empty in that case.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	if err := s.syncOnce(ctx); err != nil {
		return fmt.Errorf("initial feed load: %w", err)
	}
	return nil
}

func (s *Synchronizer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if err := s.syncOnce(s.ctx); err != nil {
					s.log.Warn().Err(err).Msg("feed sync tick failed")
				}
			}
		}
	}()
}

func (s *Synchronizer) Stop() {
	s.cancel()
	s.wg.Wait()
}

// syncOnce runs one cursor fetch-and-merge. The same path serves the
// initial full load (no cursor) and incremental refreshes.
func (s *Synchronizer) syncOnce(ctx context.Context) error {
	var after *float64
	if cursor, ok := s.store.NewestTimestamp(); ok {
		after = &cursor
	}

	page, err := s.client.ListFeedSince(ctx, after)
	if err != nil {
		return err
	}

	if len(page.Images) > 0 {
		added := s.store.InsertNewest(page.Images...)
		if len(added) > 0 {
			s.log.Debug().Int("count", len(added)).Msg("new feed items merged")
			if s.OnNewItems != nil {
				s.OnNewItems(added)
			}
		}
	}

	if page.Stats != nil {
		s.store.ReplaceStats(*page.Stats)
	}
	return nil
}
