// Package rbac resolves portal permissions for a principal.
//
// # Overview
//
// Permissions are flat string keys such as "portal.view" or
// "portal.pages.publish". A user's effective set inside an organization is
// the union of the permissions granted to the user's member role and any
// permissions granted to the user directly. The wildcard key "*" grants
// everything.
//
// # Oracle
//
// Every permission question in the portal goes through the Oracle interface:
//
//	ok, err := oracle.HasAllPermissions(ctx, userID, orgID, []string{"portal.view"})
//
// SQLOracle answers from the portal_members, portal_role_permissions and
// portal_member_permissions tables. CachedOracle wraps any Oracle with an
// expiring LRU and collapses concurrent lookups for the same user.
//
// # Grants
//
// Grants is the request-scoped view handed to portal.Principal. It fetches
// the user's full permission set on first use and answers every later
// question from memory, so one request costs at most one oracle round trip.
// A failed or timed-out lookup is remembered for the rest of the request and
// every check answers false.
//
// # Related Packages
//
//   - pkg/portal: Principal consumes Grants as its PermissionSource
//   - pkg/access: access decisions and block guards
//   - pkg/composer: permission checks before mutations
package rbac
