package pages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

var tracer = otel.Tracer("github.com/platinummonkey/portalgate/pkg/pages")

const uniqueViolation = "23505"

const pageColumns = `id, org_id, slug, title, status, is_public, allowed_roles,
	required_permissions, blocks, view_count, last_viewed_at, created_at, updated_at`

// DBStore implements page and resource persistence on PostgreSQL
type DBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBStore creates a new page store
func NewDBStore(db *sql.DB) *DBStore {
	return &DBStore{db: db, now: time.Now}
}

// FindPublished returns the published page with slug in orgID
func (s *DBStore) FindPublished(ctx context.Context, orgID, slug string) (*portal.Page, error) {
	ctx, span := tracer.Start(ctx, "PostgresStore.FindPublished",
		trace.WithAttributes(
			attribute.String("db.operation", "SELECT"),
			attribute.String("portal.org_id", orgID),
			attribute.String("portal.slug", slug),
		),
	)
	defer span.End()

	query := `SELECT ` + pageColumns + ` FROM portal_pages WHERE org_id = $1 AND slug = $2 AND status = 'published'`
	page, err := scanPage(s.db.QueryRowContext(ctx, query, orgID, slug))
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query page")
	}
	return page, err
}

// FindByID returns a page in any status
func (s *DBStore) FindByID(ctx context.Context, pageID string) (*portal.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM portal_pages WHERE id = $1`
	return scanPage(s.db.QueryRowContext(ctx, query, pageID))
}

// RecordView increments the view count of a page
func (s *DBStore) RecordView(ctx context.Context, pageID string, at time.Time) error {
	query := `UPDATE portal_pages SET view_count = view_count + 1, last_viewed_at = $2 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, pageID, at)
	if err != nil {
		return fmt.Errorf("failed to record page view: %w", err)
	}
	return requireAffected(result)
}

// CreatePage inserts page, assigning an ID and timestamps when missing
func (s *DBStore) CreatePage(ctx context.Context, page *portal.Page) error {
	if page.ID == "" {
		page.ID = uuid.New().String()
	}
	if page.Status == "" {
		page.Status = portal.PageStatusDraft
	}
	now := s.now()
	page.CreatedAt = now
	page.UpdatedAt = now

	blocks, err := marshalBlocks(page.Blocks)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO portal_pages (id, org_id, slug, title, status, is_public,
			allowed_roles, required_permissions, blocks, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = s.db.ExecContext(ctx, query,
		page.ID, page.OrgID, page.Slug, page.Title, string(page.Status), page.IsPublic,
		pq.Array(nonNil(page.AllowedRoles)), pq.Array(nonNil(page.RequiredPermissions)),
		blocks, page.CreatedAt, page.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("create page", err)
	}
	return nil
}

// UpdatePage replaces the editable fields of page
func (s *DBStore) UpdatePage(ctx context.Context, page *portal.Page) error {
	blocks, err := marshalBlocks(page.Blocks)
	if err != nil {
		return err
	}
	page.UpdatedAt = s.now()

	query := `
		UPDATE portal_pages
		SET slug = $2, title = $3, is_public = $4, allowed_roles = $5,
			required_permissions = $6, blocks = $7, updated_at = $8
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		page.ID, page.Slug, page.Title, page.IsPublic,
		pq.Array(nonNil(page.AllowedRoles)), pq.Array(nonNil(page.RequiredPermissions)),
		blocks, page.UpdatedAt,
	)
	if err != nil {
		return wrapWriteError("update page", err)
	}
	return requireAffected(result)
}

// SetPageStatus moves a page to status
func (s *DBStore) SetPageStatus(ctx context.Context, pageID string, status portal.PageStatus) error {
	query := `UPDATE portal_pages SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, pageID, string(status), s.now())
	if err != nil {
		return wrapWriteError("set page status", err)
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPage(row rowScanner) (*portal.Page, error) {
	page := &portal.Page{}
	var status string
	var blocks []byte
	var lastViewed sql.NullTime

	err := row.Scan(
		&page.ID, &page.OrgID, &page.Slug, &page.Title, &status, &page.IsPublic,
		pq.Array(&page.AllowedRoles), pq.Array(&page.RequiredPermissions),
		&blocks, &page.ViewCount, &lastViewed, &page.CreatedAt, &page.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}

	page.Status = portal.PageStatus(status)
	if lastViewed.Valid {
		t := lastViewed.Time
		page.LastViewedAt = &t
	}
	if page.AllowedRoles == nil {
		page.AllowedRoles = []string{}
	}
	if page.RequiredPermissions == nil {
		page.RequiredPermissions = []string{}
	}

	page.Blocks = []portal.Block{}
	if len(blocks) > 0 {
		if err := json.Unmarshal(blocks, &page.Blocks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blocks of page %s: %w", page.ID, err)
		}
	}

	return page, nil
}

func marshalBlocks(blocks []portal.Block) (string, error) {
	if blocks == nil {
		blocks = []portal.Block{}
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return "", fmt.Errorf("failed to marshal blocks: %w", err)
	}
	return string(data), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func wrapWriteError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrSlugTaken
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
