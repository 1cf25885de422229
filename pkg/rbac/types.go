package rbac

import (
	"sort"
	"strings"
)

// Permission keys checked by the portal itself. Pages may require any other
// key; these are only the ones the engine and composer look for.
const (
	PermissionView              = "portal.view"
	PermissionPagesCreate       = "portal.pages.create"
	PermissionPagesEdit         = "portal.pages.edit"
	PermissionPagesPublish      = "portal.pages.publish"
	PermissionPagesDelete       = "portal.pages.delete"
	PermissionThemesManage      = "portal.themes.manage"
	PermissionDatasourcesManage = "portal.datasources.manage"
	PermissionAuditRead         = "portal.audit.read"

	// PermissionAll grants every key
	PermissionAll = "*"
)

// Built-in member roles
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleTech   = "tech"
	RoleViewer = "viewer"
)

// Member is a user's membership in an organization
type Member struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Role   string `json:"role"`
}

// PermissionSet is a resolved set of permission keys
type PermissionSet map[string]struct{}

// NewPermissionSet builds a set from keys, ignoring blanks
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		set[k] = struct{}{}
	}
	return set
}

// Has reports whether key is granted
func (s PermissionSet) Has(key string) bool {
	if _, ok := s[PermissionAll]; ok {
		return true
	}
	_, ok := s[key]
	return ok
}

// HasAll reports whether every key is granted. An empty key list is
// trivially satisfied.
func (s PermissionSet) HasAll(keys ...string) bool {
	for _, k := range keys {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one key is granted
func (s PermissionSet) HasAny(keys ...string) bool {
	for _, k := range keys {
		if s.Has(k) {
			return true
		}
	}
	return false
}

// Keys returns the granted keys in sorted order
func (s PermissionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
