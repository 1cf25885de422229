package rbac

import (
	"context"
	"fmt"
)

// Oracle resolves a user's effective permissions inside an organization
type Oracle interface {
	// HasPermission reports whether the user holds key
	HasPermission(ctx context.Context, userID, orgID, key string) (bool, error)

	// HasAllPermissions reports whether the user holds every key
	HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error)

	// HasAnyPermission reports whether the user holds at least one key
	HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error)

	// GetUserPermissions returns the user's full effective permission set
	GetUserPermissions(ctx context.Context, userID, orgID string) (PermissionSet, error)
}

// SQLOracle answers permission questions from the RBAC tables
type SQLOracle struct {
	store *Store
}

// NewSQLOracle creates an oracle backed by store
func NewSQLOracle(store *Store) *SQLOracle {
	return &SQLOracle{store: store}
}

// GetUserPermissions returns the user's full effective permission set
func (o *SQLOracle) GetUserPermissions(ctx context.Context, userID, orgID string) (PermissionSet, error) {
	keys, err := o.store.UserPermissions(ctx, userID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions for user %s: %w", userID, err)
	}
	return NewPermissionSet(keys...), nil
}

// HasPermission reports whether the user holds key
func (o *SQLOracle) HasPermission(ctx context.Context, userID, orgID, key string) (bool, error) {
	return hasAll(ctx, o, userID, orgID, []string{key})
}

// HasAllPermissions reports whether the user holds every key
func (o *SQLOracle) HasAllPermissions(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return hasAll(ctx, o, userID, orgID, keys)
}

// HasAnyPermission reports whether the user holds at least one key
func (o *SQLOracle) HasAnyPermission(ctx context.Context, userID, orgID string, keys []string) (bool, error) {
	return hasAny(ctx, o, userID, orgID, keys)
}

type permissionLookup interface {
	GetUserPermissions(ctx context.Context, userID, orgID string) (PermissionSet, error)
}

func hasAll(ctx context.Context, l permissionLookup, userID, orgID string, keys []string) (bool, error) {
	if len(keys) == 0 {
		return true, nil
	}
	set, err := l.GetUserPermissions(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return set.HasAll(keys...), nil
}

func hasAny(ctx context.Context, l permissionLookup, userID, orgID string, keys []string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	set, err := l.GetUserPermissions(ctx, userID, orgID)
	if err != nil {
		return false, err
	}
	return set.HasAny(keys...), nil
}
