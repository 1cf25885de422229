package middleware

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/auth"
	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// Authenticate resolves the request principal. A request without an
// Authorization header proceeds anonymously; a header that does not verify
// is rejected with 401.
func Authenticate(authenticator auth.Authenticator, oracle rbac.Oracle, logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if errors.Is(err, auth.ErrMissingToken) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				httputil.WriteUnauthorized(w, err.Error())
				return
			}

			identity, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				logger.WithError(err).Debug("Bearer token rejected")
				httputil.WriteUnauthorized(w, "invalid or expired token")
				return
			}

			principal := portal.NewPrincipal(
				identity.UserID,
				identity.OrgID,
				identity.Role,
				identity.Name,
				rbac.NewGrants(oracle, identity.UserID, identity.OrgID),
			)
			next.ServeHTTP(w, r.WithContext(contextkeys.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuthenticated rejects anonymous requests with 401
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contextkeys.GetPrincipal(r.Context()) == nil {
			httputil.WriteUnauthorized(w, string(portal.ReasonAuthenticationRequired))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission rejects requests whose principal lacks every one of
// keys. A failed permission lookup is treated as a denial.
func RequirePermission(logger logrus.FieldLogger, keys ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := contextkeys.GetPrincipal(r.Context())
			if principal == nil {
				httputil.WriteUnauthorized(w, string(portal.ReasonAuthenticationRequired))
				return
			}

			ok, err := principal.HasAllPermissions(r.Context(), keys...)
			if err != nil {
				logger.WithError(err).WithField("user_id", principal.UserID).Warn("Permission lookup failed")
			}
			if err != nil || !ok {
				httputil.WriteForbidden(w, string(portal.ReasonInsufficientPermissions))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
