package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

func TestServer_HealthEndpoints(t *testing.T) {
	st := newStack(t, 10)

	w := st.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portal_http_requests_total")
}

func TestServer_RequestIDPropagates(t *testing.T) {
	st := newStack(t, 10)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	st.server.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestServer_NotFound(t *testing.T) {
	st := newStack(t, 10)

	w := st.do(t, http.MethodGet, "/nonexistent", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RouteMetrics(t *testing.T) {
	st := newStack(t, 10, landingPage())

	for i := 0; i < 3; i++ {
		st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/landing", "", nil)
	}
	st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/missing", "", nil)

	ok := st.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/orgs/{orgID}/pages/{slug}", "200")
	missing := st.metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/orgs/{orgID}/pages/{slug}", "404")
	assert.Equal(t, float64(3), testutil.ToFloat64(ok))
	assert.Equal(t, float64(1), testutil.ToFloat64(missing))

	assert.Equal(t, float64(3), testutil.ToFloat64(st.metrics.RenderOutcomesTotal.WithLabelValues("allowed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(st.metrics.RenderOutcomesTotal.WithLabelValues(string(portal.ReasonNotFound))))
}

func TestServer_AuditRoutesRequirePermission(t *testing.T) {
	st := newStack(t, 10, billingPage())

	// Produce one entry to read back
	st.do(t, http.MethodGet, "/api/v1/orgs/org-1/pages/billing", viewerToken, nil)

	w := st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit", editorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit", otherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var page audit.OrgHistoryPage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&page))
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, audit.ActionUnauthorizedAccess, page.Entries[0].Action)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit/entities/page/P-billing", adminToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = st.do(t, http.MethodGet, "/api/v1/orgs/org-1/audit/export?format=csv", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
}

func TestServer_WithoutAuthenticatorEveryoneIsAnonymous(t *testing.T) {
	st := newStack(t, 10)
	server := NewServer(Deps{AuditStore: st.audit})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs/org-1/audit", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
