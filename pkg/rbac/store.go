package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetMemberRole adds a user to an organization or changes their role
func (s *Store) SetMemberRole(ctx context.Context, m Member) error {
	query := `
		INSERT INTO portal_members (user_id, org_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, org_id) DO UPDATE SET role = excluded.role
	`
	if _, err := s.db.ExecContext(ctx, query, m.UserID, m.OrgID, m.Role); err != nil {
		return fmt.Errorf("failed to set member role: %w", err)
	}
	return nil
}

// GetMember returns a user's membership, or nil if the user is not a member
func (s *Store) GetMember(ctx context.Context, userID, orgID string) (*Member, error) {
	query := `SELECT user_id, org_id, role FROM portal_members WHERE user_id = $1 AND org_id = $2`

	var m Member
	err := s.db.QueryRowContext(ctx, query, userID, orgID).Scan(&m.UserID, &m.OrgID, &m.Role)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// GrantRolePermission grants a permission to every member holding role
func (s *Store) GrantRolePermission(ctx context.Context, orgID, role, permission string) error {
	query := `
		INSERT INTO portal_role_permissions (org_id, role, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, orgID, role, permission); err != nil {
		return fmt.Errorf("failed to grant role permission: %w", err)
	}
	return nil
}

// RevokeRolePermission removes a permission from a role
func (s *Store) RevokeRolePermission(ctx context.Context, orgID, role, permission string) error {
	query := `DELETE FROM portal_role_permissions WHERE org_id = $1 AND role = $2 AND permission = $3`
	if _, err := s.db.ExecContext(ctx, query, orgID, role, permission); err != nil {
		return fmt.Errorf("failed to revoke role permission: %w", err)
	}
	return nil
}

// GrantMemberPermission grants a permission to one user directly
func (s *Store) GrantMemberPermission(ctx context.Context, userID, orgID, permission string) error {
	query := `
		INSERT INTO portal_member_permissions (user_id, org_id, permission)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, orgID, permission); err != nil {
		return fmt.Errorf("failed to grant member permission: %w", err)
	}
	return nil
}

// UserPermissions returns the union of role and direct grants for a user
func (s *Store) UserPermissions(ctx context.Context, userID, orgID string) ([]string, error) {
	query := `
		SELECT rp.permission
		FROM portal_members m
		JOIN portal_role_permissions rp ON rp.org_id = m.org_id AND rp.role = m.role
		WHERE m.user_id = $1 AND m.org_id = $2
		UNION
		SELECT mp.permission
		FROM portal_member_permissions mp
		WHERE mp.user_id = $1 AND mp.org_id = $2
	`

	rows, err := s.db.QueryContext(ctx, query, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
