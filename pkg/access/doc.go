// Package access decides whether a principal may view a page and which of
// the page's blocks it may see.
//
// Decider applies a page's policy (public flag, allowed roles, required
// permissions). Evaluator tests a single visibility guard. Filter prunes a
// block tree with the Evaluator in one pass.
//
// All three fail closed: a permission lookup error denies or hides, and an
// unknown or malformed guard hides its block. Permission questions go
// through the principal's portal.PermissionSource, so a request-scoped
// rbac.Grants keeps a full render to a single oracle round trip.
package access
