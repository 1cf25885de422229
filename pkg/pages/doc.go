// Package pages stores portal pages and the theme and datasource resources
// they reference.
//
// DBStore is the PostgreSQL document store. It answers the render path
// (FindPublished, FindByID, RecordView) and implements the writers used by
// the composer. CachedStore keeps immutable snapshots of published pages in
// an expiring LRU; writers must call Invalidate after a mutation.
package pages
