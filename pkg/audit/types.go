package audit

import (
	"time"
)

// Action names the privileged operation an entry records
type Action string

const (
	ActionPageCreate    Action = "page_create"
	ActionPageUpdate    Action = "page_update"
	ActionPagePublish   Action = "page_publish"
	ActionPageUnpublish Action = "page_unpublish"
	ActionPageDelete    Action = "page_delete"
	ActionPageRestore   Action = "page_restore"

	ActionThemeCreate     Action = "theme_create"
	ActionThemeUpdate     Action = "theme_update"
	ActionThemeDelete     Action = "theme_delete"
	ActionThemeSetDefault Action = "theme_set_default"

	ActionDatasourceCreate Action = "datasource_create"
	ActionDatasourceUpdate Action = "datasource_update"
	ActionDatasourceDelete Action = "datasource_delete"

	// ActionAccessDenied records a refused composer mutation
	ActionAccessDenied Action = "access_denied"
	// ActionUnauthorizedAccess records a refused page render
	ActionUnauthorizedAccess Action = "unauthorized_access"
)

// EntityType is the kind of object an entry is about
type EntityType string

const (
	EntityPage       EntityType = "page"
	EntityTheme      EntityType = "theme"
	EntityDatasource EntityType = "datasource"
)

// Valid reports whether t is a known entity type
func (t EntityType) Valid() bool {
	switch t {
	case EntityPage, EntityTheme, EntityDatasource:
		return true
	}
	return false
}

// Entry is one immutable audit record
type Entry struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"org_id"`
	UserID     string     `json:"user_id"`
	UserName   string     `json:"user_name"`
	Action     Action     `json:"action"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id,omitempty"`
	EntityName string     `json:"entity_name,omitempty"`
	Changes    *Changes   `json:"changes,omitempty"`
	Metadata   Metadata   `json:"metadata"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Changes holds the fields that differ between two versions of an entity
type Changes struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
	Fields []string               `json:"fields"`
}

// Metadata is request context captured with an entry
type Metadata struct {
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
}

// Subject identifies the entity an action touched
type Subject struct {
	ID   string
	Name string
}

// Fields is a flat view of an entity used for diffs
type Fields map[string]interface{}

const (
	// DefaultQueryLimit is used when a query asks for no limit
	DefaultQueryLimit = 50
	// MaxQueryLimit caps every query
	MaxQueryLimit = 200
	// RecentActivityLimit is the number of entries in a user activity summary
	RecentActivityLimit = 10
)

// NormalizeLimit applies the default and the cap to a requested limit
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// OrgHistoryFilter selects entries of one organization
type OrgHistoryFilter struct {
	OrgID   string
	Start   *time.Time
	End     *time.Time
	Actions []Action
	UserID  string
	Limit   int
	Offset  int
}

// OrgHistoryPage is one page of an org history query
type OrgHistoryPage struct {
	Entries []*Entry `json:"entries"`
	Total   int64    `json:"total"`
	Limit   int      `json:"limit"`
	Offset  int      `json:"offset"`
}

// UserActivitySummary aggregates one user's entries
type UserActivitySummary struct {
	Total    int64            `json:"total"`
	ByAction map[Action]int64 `json:"by_action"`
	Recent   []*Entry         `json:"recent"`
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson"
)

// Valid reports whether f is a supported export format
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportFormatJSON, ExportFormatCSV, ExportFormatNDJSON:
		return true
	}
	return false
}

// RetentionPolicy defines how long audit entries are kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep entries
	RetentionDays int
	// Archive uploads expired entries before deleting them
	Archive bool
}

// DefaultRetentionPolicy returns a 365 day policy with archiving
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 365,
		Archive:       true,
	}
}
