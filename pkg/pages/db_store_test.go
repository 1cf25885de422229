package pages

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/portalgate/pkg/portal"
)

func setupMockDB(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := NewDBStore(db)
	store.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	return store, mock
}

func pageRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "org_id", "slug", "title", "status", "is_public", "allowed_roles",
		"required_permissions", "blocks", "view_count", "last_viewed_at", "created_at", "updated_at",
	})
}

func TestDBStore_FindPublished(t *testing.T) {
	store, mock := setupMockDB(t)
	now := time.Now().UTC()
	blocks := []byte(`[{"id":"A","type":"section","visibility_guards":[{"type":"role","roles":["admin"]}],"children":[{"id":"B","type":"text","children":[]}]}]`)

	mock.ExpectQuery("SELECT (.+) FROM portal_pages WHERE org_id = \\$1 AND slug = \\$2 AND status = 'published'").
		WithArgs("org-1", "home").
		WillReturnRows(pageRows().AddRow("P1", "org-1", "home", "Home", "published", false,
			[]byte("{admin,editor}"), []byte("{portal.view}"), blocks, int64(7), now, now, now))

	page, err := store.FindPublished(context.Background(), "org-1", "home")
	require.NoError(t, err)
	assert.Equal(t, "P1", page.ID)
	assert.Equal(t, portal.PageStatusPublished, page.Status)
	assert.Equal(t, []string{"admin", "editor"}, page.AllowedRoles)
	assert.Equal(t, []string{"portal.view"}, page.RequiredPermissions)
	assert.Equal(t, int64(7), page.ViewCount)
	require.NotNil(t, page.LastViewedAt)

	require.Len(t, page.Blocks, 1)
	assert.Equal(t, portal.GuardRole, page.Blocks[0].Guards[0].Type)
	require.Len(t, page.Blocks[0].Children, 1)
	assert.Equal(t, "B", page.Blocks[0].Children[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_FindPublishedNotFound(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM portal_pages").WillReturnError(sql.ErrNoRows)

	page, err := store.FindPublished(context.Background(), "org-1", "missing")
	assert.Nil(t, page)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDBStore_FindByIDEmptyArrays(t *testing.T) {
	store, mock := setupMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM portal_pages WHERE id = \\$1").
		WithArgs("P2").
		WillReturnRows(pageRows().AddRow("P2", "org-1", "public", "Public", "draft", true,
			[]byte("{}"), []byte("{}"), []byte("[]"), int64(0), nil, now, now))

	page, err := store.FindByID(context.Background(), "P2")
	require.NoError(t, err)
	assert.NotNil(t, page.AllowedRoles)
	assert.Empty(t, page.AllowedRoles)
	assert.NotNil(t, page.Blocks)
	assert.Nil(t, page.LastViewedAt)
}

func TestDBStore_FindByIDQueryError(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectQuery("SELECT (.+) FROM portal_pages").WillReturnError(errors.New("connection reset"))

	_, err := store.FindByID(context.Background(), "P1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestDBStore_RecordView(t *testing.T) {
	store, mock := setupMockDB(t)
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE portal_pages SET view_count = view_count \\+ 1").
		WithArgs("P1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE portal_pages SET view_count").
		WithArgs("gone", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.RecordView(context.Background(), "P1", at))
	assert.ErrorIs(t, store.RecordView(context.Background(), "gone", at), ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_CreatePage(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec("INSERT INTO portal_pages").
		WithArgs(sqlmock.AnyArg(), "org-1", "home", "Home", "draft", false,
			sqlmock.AnyArg(), sqlmock.AnyArg(), "[]", store.now(), store.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	page := &portal.Page{OrgID: "org-1", Slug: "home", Title: "Home"}
	require.NoError(t, store.CreatePage(context.Background(), page))
	assert.NotEmpty(t, page.ID)
	assert.Equal(t, portal.PageStatusDraft, page.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_SlugConflict(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE portal_pages SET status").
		WithArgs("P1", "published", store.now()).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.SetPageStatus(context.Background(), "P1", portal.PageStatusPublished)
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestDBStore_UpdatePage(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectExec("UPDATE portal_pages\\s+SET slug = \\$2").
		WithArgs("P1", "home", "Welcome", true, sqlmock.AnyArg(), sqlmock.AnyArg(), "[]", store.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	page := &portal.Page{ID: "P1", Slug: "home", Title: "Welcome", IsPublic: true}
	require.NoError(t, store.UpdatePage(context.Background(), page))
	assert.Equal(t, store.now(), page.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Resources(t *testing.T) {
	store, mock := setupMockDB(t)
	ctx := context.Background()
	now := store.now()

	mock.ExpectExec("INSERT INTO portal_resources").
		WithArgs(sqlmock.AnyArg(), "org-1", "theme", "Dark", `{"primary":"#000"}`, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	theme := &Resource{OrgID: "org-1", Kind: KindTheme, Name: "Dark", Config: []byte(`{"primary":"#000"}`)}
	require.NoError(t, store.CreateResource(ctx, theme))

	mock.ExpectQuery("SELECT (.+) FROM portal_resources WHERE id = \\$1 AND kind = \\$2").
		WithArgs(theme.ID, "theme").
		WillReturnRows(sqlmock.NewRows([]string{"id", "org_id", "kind", "name", "config", "is_default", "created_at", "updated_at"}).
			AddRow(theme.ID, "org-1", "theme", "Dark", []byte(`{"primary":"#000"}`), false, now, now))

	got, err := store.GetResource(ctx, KindTheme, theme.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dark", got.Name)
	assert.JSONEq(t, `{"primary":"#000"}`, string(got.Config))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE portal_resources SET is_default = FALSE").
		WithArgs("org-1", "theme").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE portal_resources SET is_default = TRUE").
		WithArgs(theme.ID, "org-1", "theme", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SetDefaultResource(ctx, "org-1", KindTheme, theme.ID))

	mock.ExpectExec("DELETE FROM portal_resources").
		WithArgs("missing", "datasource").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, store.DeleteResource(ctx, KindDatasource, "missing"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_SetDefaultMissingRollsBack(t *testing.T) {
	store, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE portal_resources SET is_default = FALSE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE portal_resources SET is_default = TRUE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.SetDefaultResource(context.Background(), "org-1", KindTheme, "T9")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS portal_pages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS portal_resources").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
