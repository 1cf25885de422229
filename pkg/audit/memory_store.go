package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and single node setups
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends a copy of entry
func (s *MemoryStore) Insert(_ context.Context, entry *Entry) error {
	cp := *entry
	s.mu.Lock()
	s.entries = append(s.entries, &cp)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns every entry in insertion order
func (s *MemoryStore) All() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// newestFirst returns the entries matching keep sorted by created_at desc
func (s *MemoryStore) newestFirst(keep func(*Entry) bool) []*Entry {
	s.mu.RLock()
	out := make([]*Entry, 0)
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// EntityHistory returns the newest entries about one entity
func (s *MemoryStore) EntityHistory(_ context.Context, orgID string, entityType EntityType, entityID string, limit int) ([]*Entry, error) {
	matched := s.newestFirst(func(e *Entry) bool {
		return e.OrgID == orgID && e.EntityType == entityType && e.EntityID == entityID
	})
	return truncate(matched, 0, NormalizeLimit(limit)), nil
}

// OrgHistory returns a page of an org's entries matching filter
func (s *MemoryStore) OrgHistory(_ context.Context, filter OrgHistoryFilter) (*OrgHistoryPage, error) {
	actions := make(map[Action]bool, len(filter.Actions))
	for _, a := range filter.Actions {
		actions[a] = true
	}

	matched := s.newestFirst(func(e *Entry) bool {
		if e.OrgID != filter.OrgID {
			return false
		}
		if !inRange(e.CreatedAt, filter.Start, filter.End) {
			return false
		}
		if len(actions) > 0 && !actions[e.Action] {
			return false
		}
		return filter.UserID == "" || e.UserID == filter.UserID
	})

	limit := NormalizeLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	return &OrgHistoryPage{
		Entries: truncate(matched, offset, limit),
		Total:   int64(len(matched)),
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// UserActivity summarizes one user's entries
func (s *MemoryStore) UserActivity(_ context.Context, orgID, userID string, start, end *time.Time) (*UserActivitySummary, error) {
	matched := s.newestFirst(func(e *Entry) bool {
		return e.OrgID == orgID && e.UserID == userID && inRange(e.CreatedAt, start, end)
	})

	summary := &UserActivitySummary{
		Total:    int64(len(matched)),
		ByAction: make(map[Action]int64),
		Recent:   truncate(matched, 0, RecentActivityLimit),
	}
	for _, e := range matched {
		summary.ByAction[e.Action]++
	}
	return summary, nil
}

// ListBefore returns up to limit entries older than cutoff, oldest first
func (s *MemoryStore) ListBefore(_ context.Context, cutoff time.Time, limit, offset int) ([]*Entry, error) {
	matched := s.newestFirst(func(e *Entry) bool {
		return e.CreatedAt.Before(cutoff)
	})
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return truncate(matched, offset, limit), nil
}

// DeleteBefore removes entries older than cutoff
func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// DeleteEntries removes the entries with the given IDs
func (s *MemoryStore) DeleteEntries(_ context.Context, ids []string) (int64, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if _, ok := drop[e.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

func inRange(t time.Time, start, end *time.Time) bool {
	if start != nil && t.Before(*start) {
		return false
	}
	if end != nil && t.After(*end) {
		return false
	}
	return true
}

func truncate(entries []*Entry, offset, limit int) []*Entry {
	if offset >= len(entries) {
		return []*Entry{}
	}
	entries = entries[offset:]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
