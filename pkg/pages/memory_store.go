package pages

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

// MemoryStore is an in-process page and resource store used by tests and
// local development. Stored pages are never mutated; writes replace them.
type MemoryStore struct {
	mu        sync.RWMutex
	pages     map[string]*portal.Page
	views     map[string]int64
	resources map[string]*Resource
}

// NewMemoryStore creates a store holding pages
func NewMemoryStore(pages ...*portal.Page) *MemoryStore {
	s := &MemoryStore{
		pages:     make(map[string]*portal.Page),
		views:     make(map[string]int64),
		resources: make(map[string]*Resource),
	}
	for _, p := range pages {
		s.Put(p)
	}
	return s
}

// Put adds or replaces a page
func (s *MemoryStore) Put(page *portal.Page) {
	s.mu.Lock()
	s.pages[page.ID] = page
	s.mu.Unlock()
}

// FindPublished returns the published page with slug in orgID
func (s *MemoryStore) FindPublished(_ context.Context, orgID, slug string) (*portal.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.pages {
		if p.OrgID == orgID && p.Slug == slug && p.IsPublished() {
			return p, nil
		}
	}
	return nil, ErrNotFound
}

// FindByID returns a page in any status
func (s *MemoryStore) FindByID(_ context.Context, pageID string) (*portal.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.pages[pageID]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

// RecordView counts a view without touching the stored page
func (s *MemoryStore) RecordView(_ context.Context, pageID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[pageID]; !ok {
		return ErrNotFound
	}
	s.views[pageID]++
	return nil
}

// Views returns the number of recorded views of a page
func (s *MemoryStore) Views(pageID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.views[pageID]
}

// CreatePage stores a new page, assigning its ID and timestamps
func (s *MemoryStore) CreatePage(_ context.Context, page *portal.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if page.Status == "" {
		page.Status = portal.PageStatusDraft
	}
	if page.Status == portal.PageStatusPublished && s.slugPublishedLocked(page.OrgID, page.Slug, "") {
		return ErrSlugTaken
	}
	page.ID = uuid.NewString()
	page.CreatedAt = time.Now().UTC()
	page.UpdatedAt = page.CreatedAt

	cp := *page
	s.pages[page.ID] = &cp
	return nil
}

// UpdatePage replaces the editable fields of a stored page
func (s *MemoryStore) UpdatePage(_ context.Context, page *portal.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.pages[page.ID]
	if !ok {
		return ErrNotFound
	}
	if old.IsPublished() && s.slugPublishedLocked(old.OrgID, page.Slug, page.ID) {
		return ErrSlugTaken
	}

	cp := *old
	cp.Slug = page.Slug
	cp.Title = page.Title
	cp.IsPublic = page.IsPublic
	cp.AllowedRoles = page.AllowedRoles
	cp.RequiredPermissions = page.RequiredPermissions
	cp.Blocks = page.Blocks
	cp.UpdatedAt = time.Now().UTC()
	s.pages[page.ID] = &cp
	return nil
}

// SetPageStatus moves a page to status
func (s *MemoryStore) SetPageStatus(_ context.Context, pageID string, status portal.PageStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.pages[pageID]
	if !ok {
		return ErrNotFound
	}
	if status == portal.PageStatusPublished && s.slugPublishedLocked(old.OrgID, old.Slug, pageID) {
		return ErrSlugTaken
	}

	cp := *old
	cp.Status = status
	cp.UpdatedAt = time.Now().UTC()
	s.pages[pageID] = &cp
	return nil
}

func (s *MemoryStore) slugPublishedLocked(orgID, slug, exceptID string) bool {
	for id, p := range s.pages {
		if id != exceptID && p.OrgID == orgID && p.Slug == slug && p.IsPublished() {
			return true
		}
	}
	return false
}

// GetResource returns a resource of kind
func (s *MemoryStore) GetResource(_ context.Context, kind ResourceKind, id string) (*Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// CreateResource stores a new resource, assigning its ID and timestamps
func (s *MemoryStore) CreateResource(_ context.Context, r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = uuid.NewString()
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	s.resources[r.ID] = &cp
	return nil
}

// UpdateResource replaces a resource's name and config
func (s *MemoryStore) UpdateResource(_ context.Context, r *Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.resources[r.ID]
	if !ok || old.Kind != r.Kind {
		return ErrNotFound
	}
	cp := *old
	cp.Name = r.Name
	cp.Config = r.Config
	cp.UpdatedAt = time.Now().UTC()
	s.resources[r.ID] = &cp
	return nil
}

// DeleteResource removes a resource
func (s *MemoryStore) DeleteResource(_ context.Context, kind ResourceKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resources[id]
	if !ok || r.Kind != kind {
		return ErrNotFound
	}
	delete(s.resources, id)
	return nil
}

// SetDefaultResource makes id the only default of its kind in orgID
func (s *MemoryStore) SetDefaultResource(_ context.Context, orgID string, kind ResourceKind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.resources[id]
	if !ok || target.Kind != kind || target.OrgID != orgID {
		return ErrNotFound
	}
	for rid, r := range s.resources {
		if r.OrgID != orgID || r.Kind != kind {
			continue
		}
		isDefault := rid == id
		if r.IsDefault != isDefault {
			cp := *r
			cp.IsDefault = isDefault
			s.resources[rid] = &cp
		}
	}
	return nil
}
