package pages

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

var (
	// ErrNotFound is returned when no page or resource matches
	ErrNotFound = errors.New("not found")
	// ErrSlugTaken is returned when a published page already uses the slug
	ErrSlugTaken = errors.New("slug already published in organization")
)

// Reader answers the lookups made on the render path
type Reader interface {
	// FindPublished returns the published page with slug in orgID
	FindPublished(ctx context.Context, orgID, slug string) (*portal.Page, error)
	// FindByID returns a page in any status
	FindByID(ctx context.Context, pageID string) (*portal.Page, error)
	// RecordView increments the page's view count and stamps LastViewedAt
	RecordView(ctx context.Context, pageID string, at time.Time) error
}

// ResourceKind distinguishes the resources stored next to pages
type ResourceKind string

const (
	KindTheme      ResourceKind = "theme"
	KindDatasource ResourceKind = "datasource"
)

// Resource is a theme or datasource owned by an organization
type Resource struct {
	ID        string          `json:"id"`
	OrgID     string          `json:"org_id"`
	Kind      ResourceKind    `json:"kind"`
	Name      string          `json:"name"`
	Config    json.RawMessage `json:"config,omitempty"`
	IsDefault bool            `json:"is_default"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
