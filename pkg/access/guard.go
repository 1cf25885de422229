package access

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

// Evaluator decides whether a single visibility guard passes
type Evaluator struct {
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewEvaluator creates a guard evaluator. metrics may be nil.
func NewEvaluator(logger logrus.FieldLogger, metrics *observability.Metrics) *Evaluator {
	return &Evaluator{logger: logger, metrics: metrics}
}

// Evaluate reports whether guard passes for principal. A nil principal is
// an anonymous visitor.
func (e *Evaluator) Evaluate(ctx context.Context, principal *portal.Principal, guard portal.Guard) bool {
	switch guard.Type {
	case portal.GuardAuthenticated:
		return principal != nil

	case portal.GuardRole:
		if len(guard.Roles) == 0 {
			e.logger.WithField("guard_type", guard.Type).Warn("Role guard has no roles, hiding block")
			return false
		}
		return principal.HasRole(guard.Roles)

	case portal.GuardPermission:
		if len(guard.Permissions) == 0 {
			e.logger.WithField("guard_type", guard.Type).Warn("Permission guard has no permissions, hiding block")
			return false
		}
		if principal == nil {
			return false
		}
		ok, err := principal.HasAllPermissions(ctx, guard.Permissions...)
		if err != nil {
			e.metrics.IncOracleFailure()
			e.logger.WithError(err).WithField("user_id", principal.UserID).
				Warn("Permission lookup failed, hiding block")
			return false
		}
		return ok

	case portal.GuardCustom:
		// Custom expressions are never evaluated.
		return false

	default:
		e.logger.WithField("guard_type", guard.Type).Warn("Unknown guard type, hiding block")
		return false
	}
}

// Visible reports whether every guard passes. An empty guard list is
// always visible.
func (e *Evaluator) Visible(ctx context.Context, principal *portal.Principal, guards []portal.Guard) bool {
	for _, g := range guards {
		if !e.Evaluate(ctx, principal, g) {
			return false
		}
	}
	return true
}
