package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// seedEntries inserts n entries one minute apart, alternating users and
// actions, the newest last
func seedEntries(t *testing.T, store Store, orgID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		action := ActionPageUpdate
		user := "U1"
		if i%2 == 1 {
			action = ActionPagePublish
			user = "U2"
		}
		err := store.Insert(context.Background(), &Entry{
			ID:         fmt.Sprintf("e-%03d", i),
			OrgID:      orgID,
			UserID:     user,
			Action:     action,
			EntityType: EntityPage,
			EntityID:   "P1",
			CreatedAt:  baseTime.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestMemoryStore_EntityHistory(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", 5)
	seedEntries(t, store, "org-2", 3)

	entries, err := store.EntityHistory(context.Background(), "org-1", EntityPage, "P1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "e-004", entries[0].ID)
	assert.Equal(t, "e-000", entries[4].ID)

	entries, err = store.EntityHistory(context.Background(), "org-1", EntityPage, "P1", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = store.EntityHistory(context.Background(), "org-1", EntityTheme, "P1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryStore_EntityHistoryCap(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", MaxQueryLimit+5)

	entries, err := store.EntityHistory(context.Background(), "org-1", EntityPage, "P1", 1000)
	require.NoError(t, err)
	assert.Len(t, entries, MaxQueryLimit)

	entries, err = store.EntityHistory(context.Background(), "org-1", EntityPage, "P1", 0)
	require.NoError(t, err)
	assert.Len(t, entries, DefaultQueryLimit)
}

func TestMemoryStore_OrgHistory(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", 10)
	seedEntries(t, store, "org-2", 4)
	ctx := context.Background()

	t.Run("pagination", func(t *testing.T) {
		page, err := store.OrgHistory(ctx, OrgHistoryFilter{OrgID: "org-1", Limit: 3, Offset: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(10), page.Total)
		require.Len(t, page.Entries, 3)
		assert.Equal(t, "e-006", page.Entries[0].ID)
	})

	t.Run("action and user filters", func(t *testing.T) {
		page, err := store.OrgHistory(ctx, OrgHistoryFilter{OrgID: "org-1", Actions: []Action{ActionPagePublish}, UserID: "U2"})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Total)
		for _, e := range page.Entries {
			assert.Equal(t, ActionPagePublish, e.Action)
		}
	})

	t.Run("date range", func(t *testing.T) {
		start := baseTime.Add(2 * time.Minute)
		end := baseTime.Add(4 * time.Minute)
		page, err := store.OrgHistory(ctx, OrgHistoryFilter{OrgID: "org-1", Start: &start, End: &end})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
	})

	t.Run("offset past end", func(t *testing.T) {
		page, err := store.OrgHistory(ctx, OrgHistoryFilter{OrgID: "org-1", Offset: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(10), page.Total)
		assert.NotNil(t, page.Entries)
		assert.Empty(t, page.Entries)
	})
}

func TestMemoryStore_UserActivity(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", 30)

	summary, err := store.UserActivity(context.Background(), "org-1", "U1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15), summary.Total)
	assert.Equal(t, map[Action]int64{ActionPageUpdate: 15}, summary.ByAction)
	require.Len(t, summary.Recent, RecentActivityLimit)
	assert.Equal(t, "e-028", summary.Recent[0].ID)

	start := baseTime.Add(20 * time.Minute)
	summary, err = store.UserActivity(context.Background(), "org-1", "U1", &start, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), summary.Total)
}

func TestMemoryStore_ListAndDeleteBefore(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", 6)
	ctx := context.Background()
	cutoff := baseTime.Add(4 * time.Minute)

	entries, err := store.ListBefore(ctx, cutoff, 3, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "e-000", entries[0].ID)

	entries, err = store.ListBefore(ctx, cutoff, 3, 3)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e-003", entries[0].ID)

	deleted, err := store.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)
	assert.Equal(t, 2, store.Len())
}

func TestMemoryStore_DeleteEntries(t *testing.T) {
	store := NewMemoryStore()
	seedEntries(t, store, "org-1", 4)

	deleted, err := store.DeleteEntries(context.Background(), []string{"e-001", "e-003", "missing"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	entries, err := store.ListBefore(context.Background(), baseTime.Add(time.Hour), 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e-000", entries[0].ID)
	assert.Equal(t, "e-002", entries[1].ID)
}
