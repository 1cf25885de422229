package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/composer"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

func pricingInput() composer.PageInput {
	return composer.PageInput{
		Slug:     "pricing",
		Title:    "Pricing",
		IsPublic: true,
		Blocks:   []portal.Block{{ID: "table", Type: "pricing-table", Children: []portal.Block{}}},
	}
}

func TestComposer_PageLifecycleIsVisibleToRender(t *testing.T) {
	st := newStack(t, 10)

	w := st.do(t, http.MethodPost, "/api/v1/pages", editorToken, pricingInput())
	require.Equal(t, http.StatusCreated, w.Code)
	var page portal.Page
	decode(t, w, &page)
	assert.Equal(t, "org-1", page.OrgID)
	assert.Equal(t, portal.PageStatusDraft, page.Status)

	// Drafts do not render
	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/pricing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/publish", editorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/pricing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	update := pricingInput()
	update.Title = "Plans"
	w = st.do(t, http.MethodPut, "/api/v1/pages/"+page.ID, editorToken, update)
	require.Equal(t, http.StatusOK, w.Code)

	// The update invalidated the cached snapshot
	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/pricing", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rendered portal.Page
	decode(t, w, &rendered)
	assert.Equal(t, "Plans", rendered.Title)

	w = st.do(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/unpublish", editorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/pricing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	actions := []audit.Action{}
	for _, e := range st.audit.All() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []audit.Action{
		audit.ActionPageCreate,
		audit.ActionPagePublish,
		audit.ActionPageUpdate,
		audit.ActionPageUnpublish,
	}, actions)
}

func TestComposer_DeleteAndRestore(t *testing.T) {
	st := newStack(t, 10)

	w := st.do(t, http.MethodPost, "/api/v1/pages", adminToken, pricingInput())
	require.Equal(t, http.StatusCreated, w.Code)
	var page portal.Page
	decode(t, w, &page)

	w = st.do(t, http.MethodDelete, "/api/v1/pages/"+page.ID, editorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = st.do(t, http.MethodDelete, "/api/v1/pages/"+page.ID, adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, portal.PageStatusArchived, page.Status)

	w = st.do(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/restore", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, portal.PageStatusDraft, page.Status)
}

func TestComposer_ErrorMapping(t *testing.T) {
	existing := &portal.Page{ID: "P-live", OrgID: "org-1", Slug: "pricing", Title: "Pricing", Status: portal.PageStatusPublished}
	st := newStack(t, 10, existing)

	w := st.do(t, http.MethodPost, "/api/v1/pages", "", pricingInput())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/pages", viewerToken, pricingInput())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(portal.ReasonInsufficientPermissions), errorBody(t, w))

	bad := pricingInput()
	bad.Slug = "Not A Slug"
	w = st.do(t, http.MethodPost, "/api/v1/pages", editorToken, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/pages/P-missing/publish", editorToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Another org cannot see the page at all
	w = st.do(t, http.MethodPost, "/api/v1/pages/P-live/unpublish", otherToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/pages", editorToken, pricingInput())
	require.Equal(t, http.StatusCreated, w.Code)
	var draft portal.Page
	decode(t, w, &draft)

	w = st.do(t, http.MethodPost, "/api/v1/pages/"+draft.ID+"/publish", editorToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/pages/"+draft.ID+"/restore", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	denied := 0
	for _, e := range st.audit.All() {
		if e.Action == audit.ActionAccessDenied {
			denied++
		}
	}
	assert.Equal(t, 2, denied)
}

func TestComposer_Themes(t *testing.T) {
	st := newStack(t, 10)

	w := st.do(t, http.MethodPost, "/api/v1/themes", editorToken, composer.ResourceInput{Name: "Dark"})
	require.Equal(t, http.StatusCreated, w.Code)
	var theme pages.Resource
	decode(t, w, &theme)
	assert.Equal(t, pages.KindTheme, theme.Kind)

	w = st.do(t, http.MethodPut, "/api/v1/themes/"+theme.ID, editorToken, composer.ResourceInput{Name: "Darker"})
	require.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/themes/"+theme.ID+"/default", editorToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	stored, err := st.pages.GetResource(context.Background(), pages.KindTheme, theme.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDefault)
	assert.Equal(t, "Darker", stored.Name)

	w = st.do(t, http.MethodDelete, "/api/v1/themes/"+theme.ID, editorToken, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = st.do(t, http.MethodDelete, "/api/v1/themes/"+theme.ID, editorToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestComposer_Datasources(t *testing.T) {
	st := newStack(t, 10)

	// Editors manage themes but not datasources
	w := st.do(t, http.MethodPost, "/api/v1/datasources", editorToken, composer.ResourceInput{Name: "Tickets"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/datasources", adminToken,
		map[string]interface{}{"name": "Tickets", "config": []int{1, 2}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = st.do(t, http.MethodPost, "/api/v1/datasources", adminToken,
		map[string]interface{}{"name": "Tickets", "config": map[string]string{"url": "https://tickets.example.com"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var ds pages.Resource
	decode(t, w, &ds)
	assert.Equal(t, pages.KindDatasource, ds.Kind)

	w = st.do(t, http.MethodPut, "/api/v1/datasources/"+ds.ID, adminToken, composer.ResourceInput{Name: "Issues"})
	require.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodDelete, "/api/v1/datasources/"+ds.ID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
