package access

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

// Decider evaluates a page's access policy for a principal
type Decider struct {
	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// NewDecider creates a decider. metrics may be nil.
func NewDecider(logger logrus.FieldLogger, metrics *observability.Metrics) *Decider {
	return &Decider{logger: logger, metrics: metrics}
}

// Decide returns whether principal may view page. A nil principal is an
// anonymous visitor. Checks run in order: public flag, authentication,
// organization, allowed roles, required permissions. A principal from
// another organization is told the page does not exist.
func (d *Decider) Decide(ctx context.Context, principal *portal.Principal, page *portal.Page) portal.Decision {
	if page.IsPublic {
		return portal.Allow()
	}

	if principal == nil {
		return portal.Deny(portal.ReasonAuthenticationRequired)
	}

	if principal.OrgID != page.OrgID {
		return portal.Deny(portal.ReasonNotFound)
	}

	if len(page.AllowedRoles) > 0 && !principal.HasRole(page.AllowedRoles) {
		return portal.Deny(portal.ReasonInsufficientRole)
	}

	if len(page.RequiredPermissions) > 0 {
		ok, err := principal.HasAllPermissions(ctx, page.RequiredPermissions...)
		if err != nil {
			d.metrics.IncOracleFailure()
			d.logger.WithError(err).WithFields(logrus.Fields{
				"page_id": page.ID,
				"user_id": principal.UserID,
				"org_id":  principal.OrgID,
			}).Warn("Permission lookup failed, denying page access")
			return portal.Deny(portal.ReasonInsufficientPermissions)
		}
		if !ok {
			return portal.Deny(portal.ReasonInsufficientPermissions)
		}
	}

	return portal.Allow()
}

// ScopeToOrg returns principal when it belongs to orgID and nil otherwise,
// so a visitor from another organization is treated as a guest and its
// grants are never resolved against orgID's content.
func ScopeToOrg(principal *portal.Principal, orgID string) *portal.Principal {
	if principal == nil || principal.OrgID != orgID {
		return nil
	}
	return principal
}
