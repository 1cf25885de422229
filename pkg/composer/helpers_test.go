package composer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// memWriter is an in-memory PageWriter and ResourceWriter
type memWriter struct {
	mu        sync.Mutex
	pages     map[string]*portal.Page
	resources map[string]*pages.Resource
	seq       atomic.Int32
	writeErr  error
}

func newMemWriter() *memWriter {
	return &memWriter{
		pages:     make(map[string]*portal.Page),
		resources: make(map[string]*pages.Resource),
	}
}

func (w *memWriter) nextID(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, w.seq.Add(1))
}

func (w *memWriter) FindByID(ctx context.Context, pageID string) (*portal.Page, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[pageID]
	if !ok {
		return nil, pages.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (w *memWriter) CreatePage(ctx context.Context, page *portal.Page) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	page.ID = w.nextID("P")
	cp := *page
	w.mu.Lock()
	w.pages[page.ID] = &cp
	w.mu.Unlock()
	return nil
}

func (w *memWriter) UpdatePage(ctx context.Context, page *portal.Page) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	cp := *page
	w.mu.Lock()
	w.pages[page.ID] = &cp
	w.mu.Unlock()
	return nil
}

func (w *memWriter) SetPageStatus(ctx context.Context, pageID string, status portal.PageStatus) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pages[pageID]
	if !ok {
		return pages.ErrNotFound
	}
	p.Status = status
	return nil
}

func (w *memWriter) GetResource(ctx context.Context, kind pages.ResourceKind, id string) (*pages.Resource, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.resources[id]
	if !ok || r.Kind != kind {
		return nil, pages.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (w *memWriter) CreateResource(ctx context.Context, r *pages.Resource) error {
	r.ID = w.nextID(string(r.Kind[0:1]))
	cp := *r
	w.mu.Lock()
	w.resources[r.ID] = &cp
	w.mu.Unlock()
	return nil
}

func (w *memWriter) UpdateResource(ctx context.Context, r *pages.Resource) error {
	cp := *r
	w.mu.Lock()
	w.resources[r.ID] = &cp
	w.mu.Unlock()
	return nil
}

func (w *memWriter) DeleteResource(ctx context.Context, kind pages.ResourceKind, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.resources, id)
	return nil
}

func (w *memWriter) SetDefaultResource(ctx context.Context, orgID string, kind pages.ResourceKind, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.resources {
		if r.OrgID == orgID && r.Kind == kind {
			r.IsDefault = r.ID == id
		}
	}
	return nil
}

// invalidations records cache invalidations
type invalidations struct {
	keys []string
}

func (i *invalidations) Invalidate(orgID, slug string) {
	i.keys = append(i.keys, orgID+"/"+slug)
}

// grantOracle grants a fixed set to everyone
type grantOracle struct {
	perms rbac.PermissionSet
	err   error
}

func (o *grantOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (rbac.PermissionSet, error) {
	return o.perms, o.err
}

func (o *grantOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	return o.perms.Has(key), o.err
}

func (o *grantOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return o.perms.HasAll(keys...), o.err
}

func (o *grantOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return o.perms.HasAny(keys...), o.err
}

type fixture struct {
	svc    *Service
	writer *memWriter
	audit  *audit.MemoryStore
	cache  *invalidations
}

func newFixture() *fixture {
	f := &fixture{
		writer: newMemWriter(),
		audit:  audit.NewMemoryStore(),
		cache:  &invalidations{},
	}
	f.svc = NewService(f.writer, f.writer, f.cache, audit.NewRecorder(f.audit, logrus.New()), logrus.New())
	return f
}

func member(orgID string, perms ...string) *portal.Principal {
	oracle := &grantOracle{perms: rbac.NewPermissionSet(perms...)}
	return portal.NewPrincipal("U1", orgID, rbac.RoleEditor, "User One", rbac.NewGrants(oracle, "U1", orgID))
}

func (f *fixture) actions() []audit.Action {
	out := []audit.Action{}
	for _, e := range f.audit.All() {
		out = append(out, e.Action)
	}
	return out
}
