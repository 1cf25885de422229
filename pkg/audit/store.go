package audit

import (
	"context"
	"time"
)

// Store persists and queries audit entries
type Store interface {
	// Insert appends an entry
	Insert(ctx context.Context, entry *Entry) error

	// EntityHistory returns the newest entries about one entity
	EntityHistory(ctx context.Context, orgID string, entityType EntityType, entityID string, limit int) ([]*Entry, error)

	// OrgHistory returns a filtered, paginated page of an org's entries
	OrgHistory(ctx context.Context, filter OrgHistoryFilter) (*OrgHistoryPage, error)

	// UserActivity summarizes one user's entries within an optional range
	UserActivity(ctx context.Context, orgID, userID string, start, end *time.Time) (*UserActivitySummary, error)

	// ListBefore returns up to limit entries created before cutoff, oldest
	// first, skipping offset entries
	ListBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*Entry, error)

	// DeleteBefore removes entries created before cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteEntries removes the entries with the given IDs
	DeleteEntries(ctx context.Context, ids []string) (int64, error)
}
