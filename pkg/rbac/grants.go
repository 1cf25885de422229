package rbac

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/portalgate/pkg/rbac")

// Grants is a request-scoped, lazily resolved permission view of one user.
// It implements portal.PermissionSource.
type Grants struct {
	oracle Oracle
	userID string
	orgID  string

	mu       sync.Mutex
	resolved bool
	set      PermissionSet
	err      error
}

// NewGrants creates grants for a user. Nothing is fetched until the first
// question is asked.
func NewGrants(oracle Oracle, userID, orgID string) *Grants {
	return &Grants{
		oracle: oracle,
		userID: userID,
		orgID:  orgID,
	}
}

// HasAll reports whether the user holds every key
func (g *Grants) HasAll(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	set, err := g.resolve(ctx)
	if err != nil {
		return false, err
	}
	return set.HasAll(keys...), nil
}

// HasAny reports whether the user holds at least one key
func (g *Grants) HasAny(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	set, err := g.resolve(ctx)
	if err != nil {
		return false, err
	}
	return set.HasAny(keys...), nil
}

// Resolved reports whether the oracle has been consulted
func (g *Grants) Resolved() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resolved
}

// resolve fetches the permission set once. The outcome, including a
// failure, is kept for the life of the grants.
func (g *Grants) resolve(ctx context.Context) (PermissionSet, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolved {
		return g.set, g.err
	}

	ctx, span := tracer.Start(ctx, "rbac.ResolveGrants",
		trace.WithAttributes(
			attribute.String("portal.user_id", g.userID),
			attribute.String("portal.org_id", g.orgID),
		),
	)
	defer span.End()

	g.set, g.err = g.oracle.GetUserPermissions(ctx, g.userID, g.orgID)
	if g.err == nil && ctx.Err() != nil {
		g.set, g.err = nil, ctx.Err()
	}
	if g.err != nil {
		span.RecordError(g.err)
		span.SetStatus(codes.Error, "permission lookup failed")
	}
	g.resolved = true
	return g.set, g.err
}
