package rbac

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/portalgate/pkg/observability"
)

// DefaultLookupTimeout bounds one shared upstream permission lookup
const DefaultLookupTimeout = 5 * time.Second

// CachedOracle wraps an Oracle with an expiring LRU of resolved permission
// sets. Concurrent misses for the same user share one upstream lookup.
type CachedOracle struct {
	next    Oracle
	cache   *lru.LRU[string, PermissionSet]
	group   singleflight.Group
	metrics *observability.Metrics
	timeout time.Duration
}

// NewCachedOracle creates a caching oracle. size bounds the number of cached
// (user, org) pairs; ttl bounds how stale a grant or revocation may be.
func NewCachedOracle(next Oracle, size int, ttl time.Duration) *CachedOracle {
	if size <= 0 {
		size = 1024
	}
	return &CachedOracle{
		next:    next,
		cache:   lru.NewLRU[string, PermissionSet](size, nil, ttl),
		timeout: DefaultLookupTimeout,
	}
}

// SetMetrics attaches cache hit/miss counters
func (c *CachedOracle) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// SetLookupTimeout changes how long a shared upstream lookup may run
func (c *CachedOracle) SetLookupTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// GetUserPermissions returns the cached set or resolves it upstream. Errors
// are never cached. The shared lookup is detached from any one caller's
// cancellation and bounded by the lookup timeout; each caller still returns
// when its own context is done.
func (c *CachedOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (PermissionSet, error) {
	key := cacheKey(userID, orgID)
	if set, ok := c.cache.Get(key); ok {
		c.metrics.ObserveCache("permissions", true)
		return set, nil
	}
	c.metrics.ObserveCache("permissions", false)

	timeout := c.timeout
	ch := c.group.DoChan(key, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		set, err := c.next.GetUserPermissions(lookupCtx, userID, orgID)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, set)
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HasPermission reports whether the user holds key
func (c *CachedOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	return hasAll(ctx, c, userID, orgID, []string{key})
}

// HasAllPermissions reports whether the user holds every key
func (c *CachedOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return hasAll(ctx, c, userID, orgID, keys)
}

// HasAnyPermission reports whether the user holds at least one key
func (c *CachedOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return hasAny(ctx, c, userID, orgID, keys)
}

// Invalidate drops the cached set for one user in one organization
func (c *CachedOracle) Invalidate(userID, orgID string) {
	c.cache.Remove(cacheKey(userID, orgID))
}

// Purge drops every cached set
func (c *CachedOracle) Purge() {
	c.cache.Purge()
}

func cacheKey(userID, orgID string) string {
	return orgID + "\x00" + userID
}
