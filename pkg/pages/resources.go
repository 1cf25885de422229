package pages

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const resourceColumns = `id, org_id, kind, name, config, is_default, created_at, updated_at`

// GetResource returns one theme or datasource
func (s *DBStore) GetResource(ctx context.Context, kind ResourceKind, id string) (*Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM portal_resources WHERE id = $1 AND kind = $2`

	r := &Resource{}
	var k string
	var config []byte
	err := s.db.QueryRowContext(ctx, query, id, string(kind)).Scan(
		&r.ID, &r.OrgID, &k, &r.Name, &config, &r.IsDefault, &r.CreatedAt, &r.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	r.Kind = ResourceKind(k)
	if len(config) > 0 {
		r.Config = config
	}
	return r, nil
}

// CreateResource inserts a theme or datasource
func (s *DBStore) CreateResource(ctx context.Context, r *Resource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := s.now()
	r.CreatedAt = now
	r.UpdatedAt = now

	query := `
		INSERT INTO portal_resources (id, org_id, kind, name, config, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.OrgID, string(r.Kind), r.Name, configArg(r), r.CreatedAt, r.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create %s: %w", r.Kind, err)
	}
	return nil
}

// UpdateResource replaces the name and config of a resource
func (s *DBStore) UpdateResource(ctx context.Context, r *Resource) error {
	r.UpdatedAt = s.now()
	query := `UPDATE portal_resources SET name = $3, config = $4, updated_at = $5 WHERE id = $1 AND kind = $2`
	result, err := s.db.ExecContext(ctx, query, r.ID, string(r.Kind), r.Name, configArg(r), r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", r.Kind, err)
	}
	return requireAffected(result)
}

// DeleteResource removes a resource
func (s *DBStore) DeleteResource(ctx context.Context, kind ResourceKind, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM portal_resources WHERE id = $1 AND kind = $2`, id, string(kind))
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return requireAffected(result)
}

// SetDefaultResource makes id the only default resource of its kind in orgID
func (s *DBStore) SetDefaultResource(ctx context.Context, orgID string, kind ResourceKind, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE portal_resources SET is_default = FALSE WHERE org_id = $1 AND kind = $2 AND is_default`,
		orgID, string(kind)); err != nil {
		return fmt.Errorf("failed to clear default %s: %w", kind, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE portal_resources SET is_default = TRUE, updated_at = $4 WHERE id = $1 AND org_id = $2 AND kind = $3`,
		id, orgID, string(kind), s.now())
	if err != nil {
		return fmt.Errorf("failed to set default %s: %w", kind, err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func configArg(r *Resource) string {
	if len(r.Config) == 0 {
		return "{}"
	}
	return string(r.Config)
}
