package composer

import (
	"context"

	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
	"github.com/platinummonkey/portalgate/pkg/rbac"
)

// resourceKind describes how one resource kind is authorized and audited
type resourceKind struct {
	kind       pages.ResourceKind
	entityType audit.EntityType
	permission string
}

var (
	themeKind      = resourceKind{pages.KindTheme, audit.EntityTheme, rbac.PermissionThemesManage}
	datasourceKind = resourceKind{pages.KindDatasource, audit.EntityDatasource, rbac.PermissionDatasourcesManage}
)

func resourceSubject(r *pages.Resource) audit.Subject {
	return audit.Subject{ID: r.ID, Name: r.Name}
}

func (s *Service) loadResource(ctx context.Context, principal *portal.Principal, rk resourceKind, id string) (*pages.Resource, error) {
	r, err := s.resources.GetResource(ctx, rk.kind, id)
	if err != nil {
		return nil, err
	}
	if r.OrgID != principal.OrgID {
		return nil, pages.ErrNotFound
	}
	return r, nil
}

func (s *Service) createResource(ctx context.Context, principal *portal.Principal, rk resourceKind, in ResourceInput) (*pages.Resource, error) {
	if err := s.authorize(ctx, principal, rk.permission, rk.entityType, audit.Subject{Name: in.Name}); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	r := &pages.Resource{OrgID: principal.OrgID, Kind: rk.kind, Name: in.Name, Config: in.Config}
	if err := s.resources.CreateResource(ctx, r); err != nil {
		return nil, err
	}

	switch rk.kind {
	case pages.KindTheme:
		s.recorder.LogThemeCreate(ctx, principal, resourceSubject(r), resourceFields(r))
	case pages.KindDatasource:
		s.recorder.LogDatasourceCreate(ctx, principal, resourceSubject(r), resourceFields(r))
	}
	return r, nil
}

func (s *Service) updateResource(ctx context.Context, principal *portal.Principal, rk resourceKind, id string, in ResourceInput) (*pages.Resource, error) {
	if err := s.authorize(ctx, principal, rk.permission, rk.entityType, audit.Subject{ID: id}); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	before, err := s.loadResource(ctx, principal, rk, id)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Name = in.Name
	after.Config = in.Config
	if err := s.resources.UpdateResource(ctx, &after); err != nil {
		return nil, err
	}

	switch rk.kind {
	case pages.KindTheme:
		s.recorder.LogThemeUpdate(ctx, principal, resourceSubject(&after), resourceFields(before), resourceFields(&after))
	case pages.KindDatasource:
		s.recorder.LogDatasourceUpdate(ctx, principal, resourceSubject(&after), resourceFields(before), resourceFields(&after))
	}
	return &after, nil
}

func (s *Service) deleteResource(ctx context.Context, principal *portal.Principal, rk resourceKind, id string) error {
	if err := s.authorize(ctx, principal, rk.permission, rk.entityType, audit.Subject{ID: id}); err != nil {
		return err
	}

	before, err := s.loadResource(ctx, principal, rk, id)
	if err != nil {
		return err
	}
	if err := s.resources.DeleteResource(ctx, rk.kind, id); err != nil {
		return err
	}

	switch rk.kind {
	case pages.KindTheme:
		s.recorder.LogThemeDelete(ctx, principal, resourceSubject(before), resourceFields(before))
	case pages.KindDatasource:
		s.recorder.LogDatasourceDelete(ctx, principal, resourceSubject(before), resourceFields(before))
	}
	return nil
}

// CreateTheme creates a theme in the principal's organization
func (s *Service) CreateTheme(ctx context.Context, principal *portal.Principal, in ResourceInput) (*pages.Resource, error) {
	return s.createResource(ctx, principal, themeKind, in)
}

// UpdateTheme renames or reconfigures a theme
func (s *Service) UpdateTheme(ctx context.Context, principal *portal.Principal, id string, in ResourceInput) (*pages.Resource, error) {
	return s.updateResource(ctx, principal, themeKind, id, in)
}

// DeleteTheme removes a theme
func (s *Service) DeleteTheme(ctx context.Context, principal *portal.Principal, id string) error {
	return s.deleteResource(ctx, principal, themeKind, id)
}

// SetDefaultTheme makes a theme the organization default
func (s *Service) SetDefaultTheme(ctx context.Context, principal *portal.Principal, id string) error {
	if err := s.authorize(ctx, principal, themeKind.permission, audit.EntityTheme, audit.Subject{ID: id}); err != nil {
		return err
	}

	theme, err := s.loadResource(ctx, principal, themeKind, id)
	if err != nil {
		return err
	}
	if err := s.resources.SetDefaultResource(ctx, principal.OrgID, pages.KindTheme, id); err != nil {
		return err
	}

	s.recorder.LogThemeSetDefault(ctx, principal, resourceSubject(theme))
	return nil
}

// CreateDatasource creates a datasource in the principal's organization
func (s *Service) CreateDatasource(ctx context.Context, principal *portal.Principal, in ResourceInput) (*pages.Resource, error) {
	return s.createResource(ctx, principal, datasourceKind, in)
}

// UpdateDatasource renames or reconfigures a datasource
func (s *Service) UpdateDatasource(ctx context.Context, principal *portal.Principal, id string, in ResourceInput) (*pages.Resource, error) {
	return s.updateResource(ctx, principal, datasourceKind, id, in)
}

// DeleteDatasource removes a datasource
func (s *Service) DeleteDatasource(ctx context.Context, principal *portal.Principal, id string) error {
	return s.deleteResource(ctx, principal, datasourceKind, id)
}
