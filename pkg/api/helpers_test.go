package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portalgate/pkg/access"
	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/auth"
	"github.com/platinummonkey/portalgate/pkg/composer"
	"github.com/platinummonkey/portalgate/pkg/httputil"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
	"github.com/platinummonkey/portalgate/pkg/render"
)

// tokenAuthenticator accepts a fixed set of opaque tokens
type tokenAuthenticator map[string]*auth.Identity

func (a tokenAuthenticator) Authenticate(ctx context.Context, rawToken string) (*auth.Identity, error) {
	id, ok := a[rawToken]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return id, nil
}

// userOracle grants permissions per user ID
type userOracle map[string]rbac.PermissionSet

func (o userOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (rbac.PermissionSet, error) {
	return o[userID], nil
}

func (o userOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	return o[userID].Has(key), nil
}

func (o userOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return o[userID].HasAll(keys...), nil
}

func (o userOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return o[userID].HasAny(keys...), nil
}

const (
	adminToken  = "admin-token"
	editorToken = "editor-token"
	viewerToken = "viewer-token"
	otherToken  = "other-org-token"
)

type stack struct {
	server  *Server
	pages   *pages.MemoryStore
	audit   *audit.MemoryStore
	metrics *observability.Metrics
}

func newStack(t *testing.T, guestLimit int, pageList ...*portal.Page) *stack {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	st := &stack{
		pages:   pages.NewMemoryStore(pageList...),
		audit:   audit.NewMemoryStore(),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}

	oracle := userOracle{
		"U-admin":  rbac.NewPermissionSet(rbac.PermissionAll),
		"U-editor": rbac.NewPermissionSet(rbac.PermissionView, rbac.PermissionPagesCreate, rbac.PermissionPagesEdit, rbac.PermissionPagesPublish, rbac.PermissionThemesManage),
		"U-viewer": rbac.NewPermissionSet(rbac.PermissionView),
		"U-other":  rbac.NewPermissionSet(rbac.PermissionAll),
	}
	authenticator := tokenAuthenticator{
		adminToken:  {UserID: "U-admin", OrgID: "org-1", Role: rbac.RoleAdmin, Name: "Ada"},
		editorToken: {UserID: "U-editor", OrgID: "org-1", Role: rbac.RoleEditor, Name: "Eve"},
		viewerToken: {UserID: "U-viewer", OrgID: "org-1", Role: rbac.RoleViewer, Name: "Vic"},
		otherToken:  {UserID: "U-other", OrgID: "org-2", Role: rbac.RoleAdmin, Name: "Oz"},
	}

	limiterCfg := middleware.DefaultRateLimitConfig()
	limiterCfg.Limit = guestLimit
	limiter := middleware.NewRateLimiter(limiterCfg, logger)

	recorder := audit.NewRecorder(st.audit, logger)
	cache := pages.NewCachedStore(st.pages, 100, time.Minute, st.metrics)

	pipeline := render.NewPipeline(render.Config{
		Pages:    cache,
		Decider:  access.NewDecider(logger, st.metrics),
		Filter:   access.NewFilter(access.NewEvaluator(logger, st.metrics)),
		Limiter:  limiter,
		Recorder: recorder,
		Logger:   logger,
		Metrics:  st.metrics,
	})

	proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	st.server = NewServer(Deps{
		Pipeline:      pipeline,
		Composer:      composer.NewService(st.pages, st.pages, cache, recorder, logger),
		AuditStore:    st.audit,
		Authenticator: authenticator,
		Oracle:        oracle,
		Health:        observability.NewHealthChecker(nil, nil),
		Metrics:       st.metrics,
		Logger:        logger,

		TrustedProxies: proxies,
	})
	return st
}

func (st *stack) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	st.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dest))
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

// landingPage is public with one members-only block
func landingPage() *portal.Page {
	return &portal.Page{
		ID:       "P-landing",
		OrgID:    "org-1",
		Slug:     "landing",
		Title:    "Landing",
		Status:   portal.PageStatusPublished,
		IsPublic: true,
		Blocks: []portal.Block{
			{ID: "hero", Type: "hero", Children: []portal.Block{}},
			{ID: "members", Type: "section", Guards: []portal.Guard{portal.AuthenticatedGuard()}, Children: []portal.Block{}},
		},
	}
}

// billingPage needs billing.read, which only admins hold
func billingPage() *portal.Page {
	return &portal.Page{
		ID:                  "P-billing",
		OrgID:               "org-1",
		Slug:                "billing",
		Title:               "Billing",
		Status:              portal.PageStatusPublished,
		RequiredPermissions: []string{"billing.read"},
		Blocks:              []portal.Block{},
	}
}

func blockIDs(blocks []portal.Block) []string {
	ids := []string{}
	for _, b := range blocks {
		ids = append(ids, b.ID)
	}
	return ids
}
