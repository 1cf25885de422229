package audit

import (
	"context"
	"reflect"
	"sort"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

// AnonymousUserID is recorded for entries without an authenticated principal
const AnonymousUserID = "anonymous"

func (r *Recorder) logFor(ctx context.Context, orgID string, principal *portal.Principal, action Action, entityType EntityType, subject Subject, changes *Changes, reason string) {
	entry := &Entry{
		OrgID:      orgID,
		UserID:     AnonymousUserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   subject.ID,
		EntityName: subject.Name,
		Changes:    changes,
		Metadata:   Metadata{Reason: reason},
	}
	if principal != nil {
		entry.UserID = principal.UserID
		entry.UserName = principal.UserName
		if entry.OrgID == "" {
			entry.OrgID = principal.OrgID
		}
	}
	r.Log(ctx, entry)
}

func (r *Recorder) logMutation(ctx context.Context, principal *portal.Principal, action Action, entityType EntityType, subject Subject, before, after Fields) {
	var orgID string
	if principal != nil {
		orgID = principal.OrgID
	}
	r.logFor(ctx, orgID, principal, action, entityType, subject, Diff(before, after), "")
}

// LogPageCreate records a page creation
func (r *Recorder) LogPageCreate(ctx context.Context, principal *portal.Principal, page Subject, after Fields) {
	r.logMutation(ctx, principal, ActionPageCreate, EntityPage, page, nil, after)
}

// LogPageUpdate records a page edit with the fields that changed
func (r *Recorder) LogPageUpdate(ctx context.Context, principal *portal.Principal, page Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionPageUpdate, EntityPage, page, before, after)
}

// LogPagePublish records a page going live
func (r *Recorder) LogPagePublish(ctx context.Context, principal *portal.Principal, page Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionPagePublish, EntityPage, page, before, after)
}

// LogPageUnpublish records a published page returning to draft
func (r *Recorder) LogPageUnpublish(ctx context.Context, principal *portal.Principal, page Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionPageUnpublish, EntityPage, page, before, after)
}

// LogPageDelete records a page moving to archived
func (r *Recorder) LogPageDelete(ctx context.Context, principal *portal.Principal, page Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionPageDelete, EntityPage, page, before, after)
}

// LogPageRestore records an archived page moving back to draft
func (r *Recorder) LogPageRestore(ctx context.Context, principal *portal.Principal, page Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionPageRestore, EntityPage, page, before, after)
}

// LogThemeCreate records a theme creation
func (r *Recorder) LogThemeCreate(ctx context.Context, principal *portal.Principal, theme Subject, after Fields) {
	r.logMutation(ctx, principal, ActionThemeCreate, EntityTheme, theme, nil, after)
}

// LogThemeUpdate records a theme edit with the fields that changed
func (r *Recorder) LogThemeUpdate(ctx context.Context, principal *portal.Principal, theme Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionThemeUpdate, EntityTheme, theme, before, after)
}

// LogThemeDelete records a theme removal
func (r *Recorder) LogThemeDelete(ctx context.Context, principal *portal.Principal, theme Subject, before Fields) {
	r.logMutation(ctx, principal, ActionThemeDelete, EntityTheme, theme, before, nil)
}

// LogThemeSetDefault records a theme becoming the org default
func (r *Recorder) LogThemeSetDefault(ctx context.Context, principal *portal.Principal, theme Subject) {
	r.logMutation(ctx, principal, ActionThemeSetDefault, EntityTheme, theme, nil, nil)
}

// LogDatasourceCreate records a datasource creation
func (r *Recorder) LogDatasourceCreate(ctx context.Context, principal *portal.Principal, datasource Subject, after Fields) {
	r.logMutation(ctx, principal, ActionDatasourceCreate, EntityDatasource, datasource, nil, after)
}

// LogDatasourceUpdate records a datasource edit with the fields that changed
func (r *Recorder) LogDatasourceUpdate(ctx context.Context, principal *portal.Principal, datasource Subject, before, after Fields) {
	r.logMutation(ctx, principal, ActionDatasourceUpdate, EntityDatasource, datasource, before, after)
}

// LogDatasourceDelete records a datasource removal
func (r *Recorder) LogDatasourceDelete(ctx context.Context, principal *portal.Principal, datasource Subject, before Fields) {
	r.logMutation(ctx, principal, ActionDatasourceDelete, EntityDatasource, datasource, before, nil)
}

// LogAccessDenied records a refused composer mutation on an entity
func (r *Recorder) LogAccessDenied(ctx context.Context, principal *portal.Principal, entityType EntityType, subject Subject, reason string) {
	var orgID string
	if principal != nil {
		orgID = principal.OrgID
	}
	r.logFor(ctx, orgID, principal, ActionAccessDenied, entityType, subject, nil, reason)
}

// LogUnauthorizedAccess records a refused page render. principal is nil for
// anonymous visitors; orgID is the page's organization.
func (r *Recorder) LogUnauthorizedAccess(ctx context.Context, orgID string, principal *portal.Principal, page Subject, reason portal.Reason) {
	r.logFor(ctx, orgID, principal, ActionUnauthorizedAccess, EntityPage, page, nil, string(reason))
}

// Diff returns the changes between before and after, or nil when both are
// empty. Fields lists every changed key in sorted order; Before and After
// hold only the changed keys.
func Diff(before, after Fields) *Changes {
	if len(before) == 0 && len(after) == 0 {
		return nil
	}

	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	changes := &Changes{
		Before: map[string]interface{}{},
		After:  map[string]interface{}{},
		Fields: []string{},
	}
	for k := range keys {
		b, inBefore := before[k]
		a, inAfter := after[k]
		if inBefore && inAfter && reflect.DeepEqual(a, b) {
			continue
		}
		changes.Fields = append(changes.Fields, k)
		if inBefore {
			changes.Before[k] = b
		}
		if inAfter {
			changes.After[k] = a
		}
	}
	sort.Strings(changes.Fields)

	return changes
}
