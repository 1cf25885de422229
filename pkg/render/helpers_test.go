package render

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/platinummonkey/portalgate/pkg/access"
	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// stubOracle serves a fixed permission set and counts lookups
type stubOracle struct {
	perms rbac.PermissionSet
	err   error
	calls atomic.Int32
}

func (o *stubOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (rbac.PermissionSet, error) {
	o.calls.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.perms, nil
}

func (o *stubOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.Has(key), err
}

func (o *stubOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.HasAll(keys...), err
}

func (o *stubOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.HasAny(keys...), err
}

// failingLimiter always errors
type failingLimiter struct{}

func (failingLimiter) CheckAndIncrement(ctx context.Context, key string) (middleware.RateLimitResult, error) {
	return middleware.RateLimitResult{Allowed: true}, errors.New("redis: connection refused")
}

// brokenReader fails every lookup with a non-not-found error
type brokenReader struct{}

func (brokenReader) FindPublished(ctx context.Context, orgID, slug string) (*portal.Page, error) {
	return nil, errors.New("database unavailable")
}

func (brokenReader) FindByID(ctx context.Context, pageID string) (*portal.Page, error) {
	return nil, errors.New("database unavailable")
}

func (brokenReader) RecordView(ctx context.Context, pageID string, at time.Time) error {
	return errors.New("database unavailable")
}

// vanishingReader finds pages but fails to record views
type vanishingReader struct {
	*pages.MemoryStore
}

func (r *vanishingReader) RecordView(ctx context.Context, pageID string, at time.Time) error {
	return pages.ErrNotFound
}

type fixture struct {
	pipeline *Pipeline
	pages    *pages.MemoryStore
	audit    *audit.MemoryStore
	limiter  *middleware.RateLimiter
	now      time.Time
	hook     *logtest.Hook
}

func newFixture(pageList ...*portal.Page) *fixture {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		pages: pages.NewMemoryStore(pageList...),
		audit: audit.NewMemoryStore(),
		now:   time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
		hook:  hook,
	}
	clock := func() time.Time { return f.now }
	f.limiter = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), logger, middleware.WithClock(clock))

	f.pipeline = NewPipeline(Config{
		Pages:    f.pages,
		Decider:  access.NewDecider(logger, nil),
		Filter:   access.NewFilter(access.NewEvaluator(logger, nil)),
		Limiter:  f.limiter,
		Recorder: audit.NewRecorder(f.audit, logger),
		Logger:   logger,
		Clock:    clock,
	})
	return f
}

func principal(role string, oracle rbac.Oracle) *portal.Principal {
	return portal.NewPrincipal("U1", "org-1", role, "User One", rbac.NewGrants(oracle, "U1", "org-1"))
}

// privatePage requires portal.view and carries a guarded block tree
func privatePage() *portal.Page {
	return &portal.Page{
		ID:                  "P1",
		OrgID:               "org-1",
		Slug:                "p1",
		Title:               "Private",
		Status:              portal.PageStatusPublished,
		AllowedRoles:        []string{},
		RequiredPermissions: []string{rbac.PermissionView},
		Blocks: []portal.Block{
			{ID: "A", Type: "section", Guards: []portal.Guard{portal.RoleGuard("admin")}, Children: []portal.Block{
				{ID: "A1", Type: "text", Children: []portal.Block{}},
			}},
			{ID: "B", Type: "section", Guards: []portal.Guard{portal.PermissionGuard("billing.read")}, Children: []portal.Block{}},
			{ID: "C", Type: "text", Children: []portal.Block{}},
		},
	}
}

func publicPage() *portal.Page {
	return &portal.Page{
		ID:       "P2",
		OrgID:    "org-1",
		Slug:     "p2",
		Title:    "Public",
		Status:   portal.PageStatusPublished,
		IsPublic: true,
		Blocks: []portal.Block{
			{ID: "hero", Type: "hero", Children: []portal.Block{}},
			{ID: "members", Type: "section", Guards: []portal.Guard{portal.AuthenticatedGuard()}, Children: []portal.Block{}},
		},
	}
}

func blockIDs(blocks []portal.Block) []string {
	out := []string{}
	for _, b := range blocks {
		out = append(out, b.ID)
	}
	return out
}
