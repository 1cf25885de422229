package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const entryColumns = `id, org_id, user_id, user_name, action, entity_type,
	entity_id, entity_name, changes, metadata, created_at`

// DBStore implements Store on PostgreSQL
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates a PostgreSQL backed store and ensures its table exists
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &DBStore{db: db}
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure portal_audit_log table: %w", err)
	}

	return store, nil
}

func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS portal_audit_log (
		id UUID PRIMARY KEY,
		org_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		user_name VARCHAR(255) NOT NULL DEFAULT '',
		action VARCHAR(50) NOT NULL,
		entity_type VARCHAR(50) NOT NULL,
		entity_id VARCHAR(255) NOT NULL DEFAULT '',
		entity_name VARCHAR(255) NOT NULL DEFAULT '',
		changes JSONB,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_portal_audit_log_org_created ON portal_audit_log(org_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_portal_audit_log_entity ON portal_audit_log(org_id, entity_type, entity_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_portal_audit_log_user ON portal_audit_log(org_id, user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_portal_audit_log_action ON portal_audit_log(action);
	`

	_, err := s.db.Exec(query)
	return err
}

// Insert writes one entry
func (s *DBStore) Insert(ctx context.Context, entry *Entry) error {
	// NULL when there is no diff
	var changesArg interface{}
	if entry.Changes != nil {
		changesJSON, err := json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
		changesArg = string(changesJSON)
	}

	metadataJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO portal_audit_log (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.OrgID, entry.UserID, entry.UserName,
		string(entry.Action), string(entry.EntityType),
		entry.EntityID, entry.EntityName,
		changesArg, string(metadataJSON), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	return nil
}

// EntityHistory returns the newest entries about one entity
func (s *DBStore) EntityHistory(ctx context.Context, orgID string, entityType EntityType, entityID string, limit int) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM portal_audit_log
		WHERE org_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
		LIMIT $4
	`

	rows, err := s.db.QueryContext(ctx, query, orgID, string(entityType), entityID, NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query entity history: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// OrgHistory returns a page of an org's entries matching filter
func (s *DBStore) OrgHistory(ctx context.Context, filter OrgHistoryFilter) (*OrgHistoryPage, error) {
	where, args := orgHistoryWhere(filter)
	limit := NormalizeLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM portal_audit_log " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count org history: %w", err)
	}

	argCount := len(args) + 1
	query := fmt.Sprintf(`
		SELECT %s
		FROM portal_audit_log %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, entryColumns, where, argCount, argCount+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query org history: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	return &OrgHistoryPage{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

func orgHistoryWhere(filter OrgHistoryFilter) (string, []interface{}) {
	where := "WHERE org_id = $1"
	args := []interface{}{filter.OrgID}
	argCount := 2

	if filter.Start != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.Start)
		argCount++
	}

	if filter.End != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.End)
		argCount++
	}

	if len(filter.Actions) > 0 {
		where += fmt.Sprintf(" AND action = ANY($%d)", argCount)
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, pq.Array(actions))
		argCount++
	}

	if filter.UserID != "" {
		where += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, filter.UserID)
	}

	return where, args
}

// UserActivity summarizes one user's entries
func (s *DBStore) UserActivity(ctx context.Context, orgID, userID string, start, end *time.Time) (*UserActivitySummary, error) {
	where := "WHERE org_id = $1 AND user_id = $2"
	args := []interface{}{orgID, userID}
	argCount := 3

	if start != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *start)
		argCount++
	}
	if end != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *end)
		argCount++
	}

	summary := &UserActivitySummary{
		ByAction: make(map[Action]int64),
		Recent:   []*Entry{},
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT action, COUNT(*) FROM portal_audit_log "+where+" GROUP BY action", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user activity: %w", err)
	}
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user activity: %w", err)
		}
		summary.ByAction[Action(action)] = count
		summary.Total += count
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("error iterating user activity: %w", err)
	}
	rows.Close()

	recentQuery := fmt.Sprintf(`
		SELECT %s
		FROM portal_audit_log %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, entryColumns, where, argCount)

	recentRows, err := s.db.QueryContext(ctx, recentQuery, append(args, RecentActivityLimit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent activity: %w", err)
	}
	defer recentRows.Close()

	summary.Recent, err = scanEntries(recentRows)
	if err != nil {
		return nil, err
	}

	return summary, nil
}

// ListBefore returns up to limit entries older than cutoff, oldest first
func (s *DBStore) ListBefore(ctx context.Context, cutoff time.Time, limit, offset int) ([]*Entry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM portal_audit_log
		WHERE created_at < $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteBefore removes entries older than cutoff
func (s *DBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM portal_audit_log WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// DeleteEntries removes the entries with the given IDs
func (s *DBStore) DeleteEntries(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM portal_audit_log WHERE id = ANY($1::uuid[])", pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete archived audit entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var action, entityType string
		var changesJSON, metadataJSON []byte

		err := rows.Scan(
			&entry.ID, &entry.OrgID, &entry.UserID, &entry.UserName,
			&action, &entityType, &entry.EntityID, &entry.EntityName,
			&changesJSON, &metadataJSON, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = Action(action)
		entry.EntityType = EntityType(entityType)

		if len(changesJSON) > 0 && string(changesJSON) != "null" {
			entry.Changes = &Changes{}
			if err := json.Unmarshal(changesJSON, entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
