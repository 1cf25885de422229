package access

import (
	"context"
	"sync/atomic"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// fakeOracle serves a fixed permission set and counts lookups
type fakeOracle struct {
	perms rbac.PermissionSet
	err   error
	calls atomic.Int32
}

func (o *fakeOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (rbac.PermissionSet, error) {
	o.calls.Add(1)
	if o.err != nil {
		return nil, o.err
	}
	return o.perms, nil
}

func (o *fakeOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.Has(key), err
}

func (o *fakeOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.HasAll(keys...), err
}

func (o *fakeOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	set, err := o.GetUserPermissions(ctx, userID, orgID)
	return set.HasAny(keys...), err
}

func newPrincipal(role string, oracle rbac.Oracle) *portal.Principal {
	return portal.NewPrincipal("U1", "org-1", role, "User One", rbac.NewGrants(oracle, "U1", "org-1"))
}

func newEvaluator() (*Evaluator, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	return NewEvaluator(logger, nil), hook
}
