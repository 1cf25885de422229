package rbac

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

// GetMigrations returns all RBAC migrations. The statements are kept to the
// dialect shared by PostgreSQL and SQLite.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create portal_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS portal_members (
					user_id VARCHAR(64) NOT NULL,
					org_id VARCHAR(64) NOT NULL,
					role VARCHAR(64) NOT NULL,
					created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, org_id)
				);

				CREATE INDEX IF NOT EXISTS idx_portal_members_org_role ON portal_members(org_id, role);
			`,
		},
		{
			Version:     2,
			Description: "Create portal_role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS portal_role_permissions (
					org_id VARCHAR(64) NOT NULL,
					role VARCHAR(64) NOT NULL,
					permission VARCHAR(128) NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (org_id, role, permission)
				);
			`,
		},
		{
			Version:     3,
			Description: "Create portal_member_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS portal_member_permissions (
					user_id VARCHAR(64) NOT NULL,
					org_id VARCHAR(64) NOT NULL,
					permission VARCHAR(128) NOT NULL,
					granted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, org_id, permission)
				);
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
