package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// PageStatus is the lifecycle state of a portal page
type PageStatus string

const (
	PageStatusDraft     PageStatus = "draft"
	PageStatusPublished PageStatus = "published"
	PageStatusArchived  PageStatus = "archived"
)

// Valid reports whether s is a known page status
func (s PageStatus) Valid() bool {
	switch s {
	case PageStatusDraft, PageStatusPublished, PageStatusArchived:
		return true
	}
	return false
}

// Reason is the machine-readable code attached to a denial
type Reason string

const (
	ReasonNone                    Reason = ""
	ReasonNotFound                Reason = "not_found"
	ReasonAuthenticationRequired  Reason = "authentication_required"
	ReasonInsufficientRole        Reason = "insufficient_role"
	ReasonInsufficientPermissions Reason = "insufficient_permissions"
	ReasonRateLimited             Reason = "rate_limited"

	// Guest submission reasons
	ReasonInvalidEmail Reason = "invalid_email"
	ReasonNotPublic    Reason = "not_public"
)

// Decision is the outcome of an access decision
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Allow returns an allowing decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision carrying reason
func Deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// ErrNoPermissionSource is returned when a principal was built without grants
var ErrNoPermissionSource = errors.New("principal has no permission source")

// PermissionSource answers permission questions for one principal.
// Implementations are request-scoped and may resolve lazily.
type PermissionSource interface {
	HasAll(ctx context.Context, keys ...string) (bool, error)
	HasAny(ctx context.Context, keys ...string) (bool, error)
}

// Principal is the authenticated identity making a request. A nil *Principal
// means the request is anonymous.
type Principal struct {
	UserID   string `json:"user_id"`
	OrgID    string `json:"org_id"`
	Role     string `json:"role"`
	UserName string `json:"user_name,omitempty"`

	perms PermissionSource
}

// NewPrincipal builds a principal whose permissions are answered by perms
func NewPrincipal(userID, orgID, role, userName string, perms PermissionSource) *Principal {
	return &Principal{
		UserID:   userID,
		OrgID:    orgID,
		Role:     role,
		UserName: userName,
		perms:    perms,
	}
}

// HasRole reports whether the principal's role is one of roles
func (p *Principal) HasRole(roles []string) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if r == p.Role {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the principal holds every key
func (p *Principal) HasAllPermissions(ctx context.Context, keys ...string) (bool, error) {
	if p == nil {
		return false, nil
	}
	if len(keys) == 0 {
		return true, nil
	}
	if p.perms == nil {
		return false, ErrNoPermissionSource
	}
	return p.perms.HasAll(ctx, keys...)
}

// HasAnyPermission reports whether the principal holds at least one key
func (p *Principal) HasAnyPermission(ctx context.Context, keys ...string) (bool, error) {
	if p == nil || len(keys) == 0 {
		return false, nil
	}
	if p.perms == nil {
		return false, ErrNoPermissionSource
	}
	return p.perms.HasAny(ctx, keys...)
}

// Page is a dynamic content page rendered by the portal
type Page struct {
	ID                  string     `json:"id"`
	OrgID               string     `json:"org_id"`
	Slug                string     `json:"slug"`
	Title               string     `json:"title"`
	Status              PageStatus `json:"status"`
	IsPublic            bool       `json:"is_public"`
	AllowedRoles        []string   `json:"allowed_roles"`
	RequiredPermissions []string   `json:"required_permissions"`
	Blocks              []Block    `json:"blocks"`
	ViewCount           int64      `json:"view_count"`
	LastViewedAt        *time.Time `json:"last_viewed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// IsPublished returns true if the page is published
func (p *Page) IsPublished() bool {
	return p.Status == PageStatusPublished
}

// WithBlocks returns a shallow copy of the page carrying blocks. The
// receiver is left untouched.
func (p *Page) WithBlocks(blocks []Block) *Page {
	cp := *p
	cp.Blocks = blocks
	return &cp
}

// Block is one node of a page's content tree
type Block struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Props    json.RawMessage `json:"props,omitempty"`
	Guards   []Guard         `json:"visibility_guards,omitempty"`
	Children []Block         `json:"children"`
}

// GuardType tags the variant of a visibility guard
type GuardType string

const (
	GuardAuthenticated GuardType = "authenticated"
	GuardRole          GuardType = "role"
	GuardPermission    GuardType = "permission"
	GuardCustom        GuardType = "custom"
)

// Guard is a visibility predicate attached to a block. Only the fields of
// the variant named by Type are meaningful.
type Guard struct {
	Type        GuardType `json:"type"`
	Roles       []string  `json:"roles,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	Expression  string    `json:"expression,omitempty"`
}

// AuthenticatedGuard requires any authenticated principal
func AuthenticatedGuard() Guard {
	return Guard{Type: GuardAuthenticated}
}

// RoleGuard requires the principal's role to be one of roles
func RoleGuard(roles ...string) Guard {
	return Guard{Type: GuardRole, Roles: roles}
}

// PermissionGuard requires the principal to hold every permission
func PermissionGuard(permissions ...string) Guard {
	return Guard{Type: GuardPermission, Permissions: permissions}
}

// CustomGuard carries an expression that is never evaluated
func CustomGuard(expression string) Guard {
	return Guard{Type: GuardCustom, Expression: expression}
}
