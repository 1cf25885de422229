package audit

import (
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

func TestDiff(t *testing.T) {
	t.Run("both empty", func(t *testing.T) {
		assert.Nil(t, Diff(nil, Fields{}))
	})

	t.Run("create", func(t *testing.T) {
		changes := Diff(nil, Fields{"title": "Home", "slug": "home"})
		require.NotNil(t, changes)
		assert.Equal(t, []string{"slug", "title"}, changes.Fields)
		assert.Empty(t, changes.Before)
		assert.Equal(t, "Home", changes.After["title"])
	})

	t.Run("update keeps only changed fields", func(t *testing.T) {
		before := Fields{"title": "Home", "slug": "home", "roles": []string{"admin"}}
		after := Fields{"title": "Welcome", "slug": "home", "roles": []string{"admin"}, "is_public": true}

		changes := Diff(before, after)
		require.NotNil(t, changes)
		assert.Equal(t, []string{"is_public", "title"}, changes.Fields)
		assert.Equal(t, map[string]interface{}{"title": "Home"}, changes.Before)
		assert.Equal(t, map[string]interface{}{"title": "Welcome", "is_public": true}, changes.After)
	})

	t.Run("no changes", func(t *testing.T) {
		changes := Diff(Fields{"a": 1}, Fields{"a": 1})
		require.NotNil(t, changes)
		assert.Empty(t, changes.Fields)
	})
}

func TestRecorder_Wrappers(t *testing.T) {
	store := NewMemoryStore()
	recorder := NewRecorder(store, logrus.New())
	principal := portal.NewPrincipal("U1", "org-1", "editor", "User One", nil)
	ctx := context.Background()
	page := Subject{ID: "P1", Name: "Home"}
	theme := Subject{ID: "T1", Name: "Dark"}
	ds := Subject{ID: "D1", Name: "Tickets"}

	recorder.LogPageCreate(ctx, principal, page, Fields{"title": "Home"})
	recorder.LogPageUpdate(ctx, principal, page, Fields{"title": "Home"}, Fields{"title": "Welcome"})
	recorder.LogPagePublish(ctx, principal, page, Fields{"status": "draft"}, Fields{"status": "published"})
	recorder.LogPageUnpublish(ctx, principal, page, Fields{"status": "published"}, Fields{"status": "draft"})
	recorder.LogPageDelete(ctx, principal, page, Fields{"status": "draft"}, Fields{"status": "archived"})
	recorder.LogPageRestore(ctx, principal, page, Fields{"status": "archived"}, Fields{"status": "draft"})
	recorder.LogThemeCreate(ctx, principal, theme, Fields{"name": "Dark"})
	recorder.LogThemeUpdate(ctx, principal, theme, Fields{"name": "Dark"}, Fields{"name": "Darker"})
	recorder.LogThemeDelete(ctx, principal, theme, Fields{"name": "Darker"})
	recorder.LogThemeSetDefault(ctx, principal, theme)
	recorder.LogDatasourceCreate(ctx, principal, ds, Fields{"name": "Tickets"})
	recorder.LogDatasourceUpdate(ctx, principal, ds, Fields{"name": "Tickets"}, Fields{"name": "Issues"})
	recorder.LogDatasourceDelete(ctx, principal, ds, Fields{"name": "Issues"})
	recorder.LogAccessDenied(ctx, principal, EntityPage, page, "portal.pages.delete")
	recorder.LogUnauthorizedAccess(ctx, "org-1", nil, page, portal.ReasonAuthenticationRequired)

	entries := store.All()
	require.Len(t, entries, 15)

	expected := []struct {
		action     Action
		entityType EntityType
	}{
		{ActionPageCreate, EntityPage},
		{ActionPageUpdate, EntityPage},
		{ActionPagePublish, EntityPage},
		{ActionPageUnpublish, EntityPage},
		{ActionPageDelete, EntityPage},
		{ActionPageRestore, EntityPage},
		{ActionThemeCreate, EntityTheme},
		{ActionThemeUpdate, EntityTheme},
		{ActionThemeDelete, EntityTheme},
		{ActionThemeSetDefault, EntityTheme},
		{ActionDatasourceCreate, EntityDatasource},
		{ActionDatasourceUpdate, EntityDatasource},
		{ActionDatasourceDelete, EntityDatasource},
		{ActionAccessDenied, EntityPage},
		{ActionUnauthorizedAccess, EntityPage},
	}
	for i, want := range expected {
		assert.Equal(t, want.action, entries[i].Action, "entry %d", i)
		assert.Equal(t, want.entityType, entries[i].EntityType, "entry %d", i)
		assert.Equal(t, "org-1", entries[i].OrgID, "entry %d", i)
	}

	assert.Equal(t, "U1", entries[1].UserID)
	assert.Equal(t, "User One", entries[1].UserName)
	assert.Equal(t, []string{"title"}, entries[1].Changes.Fields)
	assert.Nil(t, entries[9].Changes)
	assert.Equal(t, "portal.pages.delete", entries[13].Metadata.Reason)

	anon := entries[14]
	assert.Equal(t, AnonymousUserID, anon.UserID)
	assert.Equal(t, "P1", anon.EntityID)
	assert.Equal(t, "authentication_required", anon.Metadata.Reason)
}

func TestRecorderWrappersAreDocumented(t *testing.T) {
	file, err := parser.ParseFile(token.NewFileSet(), "wrappers.go", nil, parser.ParseComments)
	require.NoError(t, err)

	checked := 0
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || !fn.Name.IsExported() {
			continue
		}
		checked++
		if assert.NotNil(t, fn.Doc, "%s has no doc comment", fn.Name.Name) {
			assert.True(t, strings.HasPrefix(fn.Doc.Text(), fn.Name.Name+" "), "%s doc should start with its name", fn.Name.Name)
		}
	}
	assert.GreaterOrEqual(t, checked, 15)
}
