package introspect_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/dbx/introspect"
)

func testDB(t *testing.T) *dbx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := dbx.Wrap(sqlDB, dbx.SQLite)
	t.Cleanup(func() { db.Close() })
	return db
}

func setup(t *testing.T) (*dbx.DB, context.Context) {
	t.Helper()
	ctx := context.Background()
	db := testDB(t)
	_, err := db.Exec(ctx, `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			email VARCHAR(255) NOT NULL UNIQUE,
			created_at DATETIME
		)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, "CREATE INDEX idx_users_created ON users (created_at)")
	require.NoError(t, err)
	_, err = db.Exec(ctx, "CREATE VIEW active_users AS SELECT id, email FROM users")
	require.NoError(t, err)
	return db, ctx
}

func TestHasTable(t *testing.T) {
	db, ctx := setup(t)

	ok, err := introspect.HasTable(ctx, db, "users")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = introspect.HasTable(ctx, db, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	// A view is not a base table.
	ok, err = introspect.HasTable(ctx, db, "active_users")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsViewAndHasRelation(t *testing.T) {
	db, ctx := setup(t)

	ok, err := introspect.IsView(ctx, db, "active_users")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = introspect.IsView(ctx, db, "users")
	require.NoError(t, err)
	require.False(t, ok)

	for _, name := range []string{"users", "active_users"} {
		ok, err = introspect.HasRelation(ctx, db, name)
		require.NoError(t, err)
		require.True(t, ok, name)
	}
	ok, err = introspect.HasRelation(ctx, db, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHasColumn(t *testing.T) {
	db, ctx := setup(t)

	ok, err := introspect.HasColumn(ctx, db, "users", "email")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = introspect.HasColumn(ctx, db, "users", "nope")
	require.NoError(t, err)
	require.False(t, ok)

	// Missing table is false, not an error.
	ok, err = introspect.HasColumn(ctx, db, "missing", "email")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestColumnType(t *testing.T) {
	db, ctx := setup(t)

	typ, err := introspect.ColumnType(ctx, db, "users", "email")
	require.NoError(t, err)
	require.Equal(t, "varchar(255)", typ)

	typ, err = introspect.ColumnType(ctx, db, "users", "nope")
	require.NoError(t, err)
	require.Empty(t, typ)
}

func TestHasIndex(t *testing.T) {
	db, ctx := setup(t)

	ok, err := introspect.HasIndexNamed(ctx, db, "users", "idx_users_created")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = introspect.HasIndexNamed(ctx, db, "users", "idx_missing")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = introspect.HasIndexOn(ctx, db, "users", "created_at")
	require.NoError(t, err)
	require.True(t, ok)

	// The unique constraint on email is backed by an auto index.
	ok, err = introspect.HasIndexOn(ctx, db, "users", "email")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = introspect.HasIndexOn(ctx, db, "users", "email", "created_at")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFreshCatalogReads(t *testing.T) {
	db, ctx := setup(t)

	// A check after a same-session DDL statement must see the new object.
	ok, err := introspect.HasTable(ctx, db, "late")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = db.Exec(ctx, "CREATE TABLE late (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	ok, err = introspect.HasTable(ctx, db, "late")
	require.NoError(t, err)
	require.True(t, ok)
}
