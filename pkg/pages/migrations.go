package pages

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the page store migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create portal_pages table",
			SQL: `
				CREATE TABLE IF NOT EXISTS portal_pages (
					id UUID PRIMARY KEY,
					org_id VARCHAR(64) NOT NULL,
					slug VARCHAR(255) NOT NULL,
					title VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'draft',
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					allowed_roles TEXT[] NOT NULL DEFAULT '{}',
					required_permissions TEXT[] NOT NULL DEFAULT '{}',
					blocks JSONB NOT NULL DEFAULT '[]'::jsonb,
					view_count BIGINT NOT NULL DEFAULT 0,
					last_viewed_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_portal_pages_published_slug
					ON portal_pages(org_id, slug) WHERE status = 'published';
				CREATE INDEX IF NOT EXISTS idx_portal_pages_org ON portal_pages(org_id);
			`,
		},
		{
			Version:     2,
			Description: "Create portal_resources table",
			SQL: `
				CREATE TABLE IF NOT EXISTS portal_resources (
					id UUID PRIMARY KEY,
					org_id VARCHAR(64) NOT NULL,
					kind VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL,
					config JSONB NOT NULL DEFAULT '{}'::jsonb,
					is_default BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_portal_resources_org_kind ON portal_resources(org_id, kind);
			`,
		},
	}
}

// Migrate applies all migrations in order. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
