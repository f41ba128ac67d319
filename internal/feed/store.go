package feed

import (
	"sync"

	"momofeed/internal/moderation"
)

// Store is the single source of truth the presentation layer renders
// from: the ordered item list (newest first) plus corpus-wide stats.
// Both the synchronizer and the upload orchestrator write to it, so
// every mutation is guarded and inserts merge by id.
type Store struct {
	mu    sync.RWMutex
	items []Item
	index map[string]int
	stats Stats
}

func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
	}
}

// InsertNewest merges a batch of items into the head of the feed,
// preserving the given order among the new entries. Items already
// present are updated in place instead of duplicated. BLOCKED items
// are never inserted; that exclusion is a content-safety invariant,
// not a display filter. Returns only the items that were actually
// added, so callers can tell genuine arrivals from merge-updates.
func (s *Store) InsertNewest(items ...Item) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make([]Item, 0, len(items))
	for _, item := range items {
		if item.Status == moderation.StatusBlocked {
			continue
		}
		if pos, ok := s.index[item.ID]; ok {
			s.items[pos] = item
			continue
		}
		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		return nil
	}

	s.items = append(fresh, s.items...)
	for i := range s.items {
		s.index[s.items[i].ID] = i
	}
	return fresh
}

// ReplaceStats swaps the aggregate counters wholesale. Last write
// wins; there is nothing to merge.
func (s *Store) ReplaceStats(stats Stats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Items returns a snapshot copy of the feed, newest first.
func (s *Store) Items() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// NewestTimestamp is the synchronizer cursor: the timestamp of the
// most recently known item. ok is false on an empty feed, which
// requests a full fetch.
func (s *Store) NewestTimestamp() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return 0, false
	}
	return s.items[0].Timestamp, true
}
