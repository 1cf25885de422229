// Package composer performs page, theme and datasource mutations on behalf
// of an authenticated principal.
//
// Every operation checks one permission before touching storage. A refused
// mutation is recorded as access_denied and returns ErrUnauthenticated or
// ErrForbidden. A successful mutation is recorded with a before/after diff
// and drops the affected page snapshots from the render cache.
package composer
