package pages

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

// CachedStore serves published pages from an expiring LRU of snapshots.
// Snapshots are shared between requests and must not be mutated; the render
// path only ever derives copies from them.
type CachedStore struct {
	next    Reader
	cache   *lru.LRU[string, *portal.Page]
	metrics *observability.Metrics
}

// NewCachedStore wraps next with a snapshot cache of size entries kept for ttl
func NewCachedStore(next Reader, size int, ttl time.Duration, metrics *observability.Metrics) *CachedStore {
	if size <= 0 {
		size = 512
	}
	return &CachedStore{
		next:    next,
		cache:   lru.NewLRU[string, *portal.Page](size, nil, ttl),
		metrics: metrics,
	}
}

// FindPublished returns the cached snapshot or loads it. Misses are not
// cached so a page published later is found without waiting for the TTL.
func (c *CachedStore) FindPublished(ctx context.Context, orgID, slug string) (*portal.Page, error) {
	key := snapshotKey(orgID, slug)
	if page, ok := c.cache.Get(key); ok {
		c.metrics.ObserveCache("pages", true)
		return page, nil
	}
	c.metrics.ObserveCache("pages", false)

	page, err := c.next.FindPublished(ctx, orgID, slug)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, page)
	return page, nil
}

// FindByID bypasses the cache
func (c *CachedStore) FindByID(ctx context.Context, pageID string) (*portal.Page, error) {
	return c.next.FindByID(ctx, pageID)
}

// RecordView bypasses the cache; cached view counts may lag
func (c *CachedStore) RecordView(ctx context.Context, pageID string, at time.Time) error {
	return c.next.RecordView(ctx, pageID, at)
}

// Invalidate drops the snapshot of one org slug
func (c *CachedStore) Invalidate(orgID, slug string) {
	c.cache.Remove(snapshotKey(orgID, slug))
}

// Len returns the number of cached snapshots
func (c *CachedStore) Len() int {
	return c.cache.Len()
}

// Purge drops every snapshot
func (c *CachedStore) Purge() {
	c.cache.Purge()
}

func snapshotKey(orgID, slug string) string {
	return orgID + "\x00" + slug
}
