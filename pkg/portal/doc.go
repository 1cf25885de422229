// Package portal defines the domain model shared by the access, render and
// composer packages: principals, portal pages, block trees, visibility guards
// and the machine-readable denial reasons returned at the render boundary.
//
// # Block trees
//
// A page carries an ordered tree of blocks. Every block may carry visibility
// guards; a block renders only when all of its guards pass for the requesting
// principal. Guards are a tagged variant encoded as JSON:
//
//	{"type": "authenticated"}
//	{"type": "role", "roles": ["admin", "tech"]}
//	{"type": "permission", "permissions": ["portal.view"]}
//	{"type": "custom", "expression": "..."}
//
// Custom guards are never evaluated and always hide their block.
//
// # Principals
//
// A Principal is request-scoped. Its permission set is resolved lazily on
// the first permission check and reused for the rest of the request, so a
// render costs at most one permission lookup.
package portal
