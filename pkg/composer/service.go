package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

var (
	// ErrUnauthenticated is returned when no principal is present
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the principal lacks the permission
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps validation failures
	ErrInvalidInput = errors.New("invalid input")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// PageWriter persists pages
type PageWriter interface {
	FindByID(ctx context.Context, pageID string) (*portal.Page, error)
	CreatePage(ctx context.Context, page *portal.Page) error
	UpdatePage(ctx context.Context, page *portal.Page) error
	SetPageStatus(ctx context.Context, pageID string, status portal.PageStatus) error
}

// ResourceWriter persists themes and datasources
type ResourceWriter interface {
	GetResource(ctx context.Context, kind pages.ResourceKind, id string) (*pages.Resource, error)
	CreateResource(ctx context.Context, r *pages.Resource) error
	UpdateResource(ctx context.Context, r *pages.Resource) error
	DeleteResource(ctx context.Context, kind pages.ResourceKind, id string) error
	SetDefaultResource(ctx context.Context, orgID string, kind pages.ResourceKind, id string) error
}

// SnapshotInvalidator drops cached page snapshots
type SnapshotInvalidator interface {
	Invalidate(orgID, slug string)
}

// PageInput holds the editable fields of a page
type PageInput struct {
	Slug                string         `json:"slug"`
	Title               string         `json:"title"`
	IsPublic            bool           `json:"is_public"`
	AllowedRoles        []string       `json:"allowed_roles"`
	RequiredPermissions []string       `json:"required_permissions"`
	Blocks              []portal.Block `json:"blocks"`
}

// Validate checks slug and title
func (in PageInput) Validate() error {
	if !slugPattern.MatchString(in.Slug) {
		return fmt.Errorf("%w: slug must be lowercase letters, digits and single hyphens", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return nil
}

// ResourceInput holds the editable fields of a theme or datasource
type ResourceInput struct {
	Name   string          `json:"name"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Validate checks the name and that config is a JSON object when present
func (in ResourceInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Config) > 0 {
		var obj map[string]interface{}
		if err := json.Unmarshal(in.Config, &obj); err != nil {
			return fmt.Errorf("%w: config must be a JSON object", ErrInvalidInput)
		}
	}
	return nil
}

// Service applies composer mutations
type Service struct {
	pages     PageWriter
	resources ResourceWriter
	cache     SnapshotInvalidator
	recorder  *audit.Recorder
	logger    logrus.FieldLogger
}

// NewService creates a composer service. cache may be nil.
func NewService(pageWriter PageWriter, resources ResourceWriter, cache SnapshotInvalidator, recorder *audit.Recorder, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		pages:     pageWriter,
		resources: resources,
		cache:     cache,
		recorder:  recorder,
		logger:    logger.WithField("component", "composer"),
	}
}

// authorize checks permission and records a denial
func (s *Service) authorize(ctx context.Context, principal *portal.Principal, permission string, entityType audit.EntityType, subject audit.Subject) error {
	if principal == nil {
		s.recorder.LogAccessDenied(ctx, nil, entityType, subject, string(portal.ReasonAuthenticationRequired))
		return ErrUnauthenticated
	}

	ok, err := principal.HasAllPermissions(ctx, permission)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":    principal.UserID,
			"org_id":     principal.OrgID,
			"permission": permission,
		}).Warn("Permission lookup failed, denying mutation")
	}
	if err != nil || !ok {
		s.recorder.LogAccessDenied(ctx, principal, entityType, subject, permission)
		return ErrForbidden
	}
	return nil
}

func (s *Service) invalidate(orgID string, slugs ...string) {
	if s.cache == nil {
		return
	}
	for _, slug := range slugs {
		s.cache.Invalidate(orgID, slug)
	}
}

func pageSubject(p *portal.Page) audit.Subject {
	return audit.Subject{ID: p.ID, Name: p.Title}
}

func pageFields(p *portal.Page) audit.Fields {
	return audit.Fields{
		"slug":                 p.Slug,
		"title":                p.Title,
		"status":               string(p.Status),
		"is_public":            p.IsPublic,
		"allowed_roles":        p.AllowedRoles,
		"required_permissions": p.RequiredPermissions,
		"blocks":               p.Blocks,
	}
}

func resourceFields(r *pages.Resource) audit.Fields {
	f := audit.Fields{"name": r.Name}
	if len(r.Config) > 0 {
		f["config"] = string(r.Config)
	}
	return f
}

// CreatePage creates a draft page in the principal's organization
func (s *Service) CreatePage(ctx context.Context, principal *portal.Principal, in PageInput) (*portal.Page, error) {
	if err := s.authorize(ctx, principal, rbac.PermissionPagesCreate, audit.EntityPage, audit.Subject{Name: in.Title}); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	page := &portal.Page{
		OrgID:               principal.OrgID,
		Slug:                in.Slug,
		Title:               in.Title,
		Status:              portal.PageStatusDraft,
		IsPublic:            in.IsPublic,
		AllowedRoles:        in.AllowedRoles,
		RequiredPermissions: in.RequiredPermissions,
		Blocks:              in.Blocks,
	}
	if err := s.pages.CreatePage(ctx, page); err != nil {
		return nil, err
	}

	s.recorder.LogPageCreate(ctx, principal, pageSubject(page), pageFields(page))
	return page, nil
}

// loadPage returns a page of the principal's organization
func (s *Service) loadPage(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error) {
	page, err := s.pages.FindByID(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page.OrgID != principal.OrgID {
		return nil, pages.ErrNotFound
	}
	return page, nil
}

// UpdatePage replaces the editable fields of a page
func (s *Service) UpdatePage(ctx context.Context, principal *portal.Principal, pageID string, in PageInput) (*portal.Page, error) {
	if err := s.authorize(ctx, principal, rbac.PermissionPagesEdit, audit.EntityPage, audit.Subject{ID: pageID}); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	before, err := s.loadPage(ctx, principal, pageID)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Slug = in.Slug
	after.Title = in.Title
	after.IsPublic = in.IsPublic
	after.AllowedRoles = in.AllowedRoles
	after.RequiredPermissions = in.RequiredPermissions
	after.Blocks = in.Blocks

	if err := s.pages.UpdatePage(ctx, &after); err != nil {
		return nil, err
	}

	s.invalidate(before.OrgID, before.Slug, after.Slug)
	s.recorder.LogPageUpdate(ctx, principal, pageSubject(&after), pageFields(before), pageFields(&after))
	return &after, nil
}

type statusChange struct {
	permission string
	target     portal.PageStatus
	log        func(r *audit.Recorder, ctx context.Context, p *portal.Principal, page audit.Subject, before, after audit.Fields)
}

var (
	publishChange   = statusChange{rbac.PermissionPagesPublish, portal.PageStatusPublished, (*audit.Recorder).LogPagePublish}
	unpublishChange = statusChange{rbac.PermissionPagesPublish, portal.PageStatusDraft, (*audit.Recorder).LogPageUnpublish}
	deleteChange    = statusChange{rbac.PermissionPagesDelete, portal.PageStatusArchived, (*audit.Recorder).LogPageDelete}
	restoreChange   = statusChange{rbac.PermissionPagesDelete, portal.PageStatusDraft, (*audit.Recorder).LogPageRestore}
)

func (s *Service) changeStatus(ctx context.Context, principal *portal.Principal, pageID string, change statusChange, allowedFrom ...portal.PageStatus) (*portal.Page, error) {
	if err := s.authorize(ctx, principal, change.permission, audit.EntityPage, audit.Subject{ID: pageID}); err != nil {
		return nil, err
	}

	before, err := s.loadPage(ctx, principal, pageID)
	if err != nil {
		return nil, err
	}

	permitted := false
	for _, st := range allowedFrom {
		if before.Status == st {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, fmt.Errorf("%w: page is %s", ErrInvalidInput, before.Status)
	}

	if err := s.pages.SetPageStatus(ctx, pageID, change.target); err != nil {
		return nil, err
	}

	after := *before
	after.Status = change.target

	s.invalidate(before.OrgID, before.Slug)
	change.log(s.recorder, ctx, principal, pageSubject(&after),
		audit.Fields{"status": string(before.Status)}, audit.Fields{"status": string(after.Status)})
	return &after, nil
}

// PublishPage makes a draft page visible to the render path
func (s *Service) PublishPage(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error) {
	return s.changeStatus(ctx, principal, pageID, publishChange, portal.PageStatusDraft)
}

// UnpublishPage moves a published page back to draft
func (s *Service) UnpublishPage(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error) {
	return s.changeStatus(ctx, principal, pageID, unpublishChange, portal.PageStatusPublished)
}

// DeletePage archives a page
func (s *Service) DeletePage(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error) {
	return s.changeStatus(ctx, principal, pageID, deleteChange, portal.PageStatusDraft, portal.PageStatusPublished)
}

// RestorePage moves an archived page back to draft
func (s *Service) RestorePage(ctx context.Context, principal *portal.Principal, pageID string) (*portal.Page, error) {
	return s.changeStatus(ctx, principal, pageID, restoreChange, portal.PageStatusArchived)
}
