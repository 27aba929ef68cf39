package ledger_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate/ledger"
)

func testDB(t *testing.T) *dbx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := dbx.Wrap(sqlDB, dbx.SQLite)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	store := ledger.NewStore(dbx.SQLite)
	require.NoError(t, store.Ensure(ctx, db))
	// Ensure is idempotent.
	require.NoError(t, store.Ensure(ctx, db))

	batch, err := store.NextBatch(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 1, batch, "empty ledger starts at batch 1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"0001_users", "0002_sessions"} {
		require.NoError(t, store.Record(ctx, db, ledger.Entry{
			ID:        id,
			Batch:     1,
			AppliedAt: base.Add(time.Duration(i) * time.Second),
			Checksum:  "abc",
		}))
	}

	entries, err := store.Entries(ctx, db)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "0001_users", entries[0].ID)
	require.Equal(t, "0002_sessions", entries[1].ID)
	require.Equal(t, 1, entries[0].Batch)
	require.Equal(t, "abc", entries[0].Checksum)

	batch, err = store.NextBatch(ctx, db)
	require.NoError(t, err)
	require.Equal(t, 2, batch)

	require.NoError(t, store.Remove(ctx, db, "0002_sessions"))
	entries, err = store.Entries(ctx, db)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestEntriesOrderFollowsAppliedAt(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	store := ledger.NewStore(dbx.SQLite)
	require.NoError(t, store.Ensure(ctx, db))

	// Divergent history: 0003 was applied before 0002.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Record(ctx, db, ledger.Entry{ID: "0003_late", Batch: 1, AppliedAt: base}))
	require.NoError(t, store.Record(ctx, db, ledger.Entry{ID: "0002_later", Batch: 2, AppliedAt: base.Add(time.Minute)}))

	entries, err := store.Entries(ctx, db)
	require.NoError(t, err)
	require.Equal(t, "0003_late", entries[0].ID)
	require.Equal(t, "0002_later", entries[1].ID)
}

func TestLockExclusion(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := ledger.NewLock(dbx.SQLite)
	require.NoError(t, a.Ensure(ctx, db))
	require.NoError(t, a.Acquire(ctx, db, time.Second))

	b := ledger.NewLock(dbx.SQLite)
	err := b.Acquire(ctx, db, 300*time.Millisecond)
	require.ErrorIs(t, err, ledger.ErrLockUnavailable)

	require.NoError(t, a.Release(ctx, db))
	require.NoError(t, b.Acquire(ctx, db, time.Second))
	require.NoError(t, b.Release(ctx, db))
}

func TestLockReleaseIsOwnerChecked(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := ledger.NewLock(dbx.SQLite)
	require.NoError(t, a.Ensure(ctx, db))
	require.NoError(t, a.Acquire(ctx, db, time.Second))

	// A different holder releasing is a no-op; the lock stays held.
	b := ledger.NewLock(dbx.SQLite)
	require.NoError(t, b.Release(ctx, db))
	require.ErrorIs(t, b.Acquire(ctx, db, 200*time.Millisecond), ledger.ErrLockUnavailable)

	require.NoError(t, a.Release(ctx, db))
}

func TestAcquireSurfacesStatementErrors(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	// The lock table was never created, so the insert fails outright. That
	// is a statement error, not contention: it must surface immediately
	// instead of polling into ErrLockUnavailable.
	l := ledger.NewLock(dbx.SQLite)
	start := time.Now()
	err := l.Acquire(ctx, db, 5*time.Second)
	require.Error(t, err)
	require.NotErrorIs(t, err, ledger.ErrLockUnavailable)
	var sqlErr *dbx.SQLError
	require.ErrorAs(t, err, &sqlErr)
	require.Less(t, time.Since(start), time.Second, "no timeout-long polling")
}

func TestLockStaleReclaim(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := ledger.NewLock(dbx.SQLite)
	require.NoError(t, a.Ensure(ctx, db))

	// Simulate a dead holder: a row acquired far in the past.
	_, err := db.Exec(ctx,
		"INSERT INTO "+ledger.LockTableName+" (name, owner, acquired_at) VALUES (?, ?, ?)",
		"eotydb", "dead-owner", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	require.NoError(t, a.Acquire(ctx, db, time.Second))
	require.NoError(t, a.Release(ctx, db))
}
