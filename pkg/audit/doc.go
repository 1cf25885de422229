// Package audit records privileged portal actions for compliance review.
//
// # Recording
//
// Recorder.Log is best effort: a failing or slow store never fails or
// delays the action being recorded. Store errors are logged and counted,
// and writes run on a context detached from the request's cancellation,
// bounded by a write timeout.
//
//	recorder := audit.NewRecorder(store, logger,
//		audit.WithMetrics(metrics),
//		audit.WithAsync(4, 1024), // bounded queue, drops when full
//	)
//	defer recorder.Close(10 * time.Second)
//
//	recorder.LogPageUpdate(ctx, principal, audit.Subject{ID: page.ID, Name: page.Title}, before, after)
//
// Typed wrappers exist for page, theme and datasource mutations, for
// composer denials (access_denied) and for page render denials
// (unauthorized_access).
//
// # Querying
//
//	entries, err := store.EntityHistory(ctx, orgID, audit.EntityPage, pageID, 50)
//	page, err := store.OrgHistory(ctx, audit.OrgHistoryFilter{OrgID: orgID, Limit: 50})
//	summary, err := store.UserActivity(ctx, orgID, userID, nil, nil)
//
// Limits default to 50 and are capped at 200. Results are newest first.
//
// # Export and Retention
//
// Export streams an org history filter as JSON, CSV or NDJSON. Retention
// deletes entries older than the policy cutoff, archiving them to S3 as
// NDJSON first when an archiver is configured.
package audit
