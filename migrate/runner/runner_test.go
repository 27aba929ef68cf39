package runner_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/dbx/introspect"
	"github.com/eoty-platform/eoty-db/migrate"
	"github.com/eoty-platform/eoty-db/migrate/ledger"
	"github.com/eoty-platform/eoty-db/migrate/repairplan"
	"github.com/eoty-platform/eoty-db/migrate/runner"
)

func testDB(t *testing.T) *dbx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db := dbx.Wrap(sqlDB, dbx.SQLite)
	t.Cleanup(func() { db.Close() })
	return db
}

// createTableUnit builds a guarded unit that creates (and on revert drops)
// a single table.
func createTableUnit(id, table, body string) *migrate.Unit {
	return &migrate.Unit{
		ID: id,
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasTable(ctx, a, table)
			if err != nil || ok {
				return err
			}
			_, err = a.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", table, body))
			return err
		},
		Revert: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasTable(ctx, a, table)
			if err != nil || !ok {
				return err
			}
			_, err = a.Exec(ctx, fmt.Sprintf("DROP TABLE %s", table))
			return err
		},
	}
}

// threeStepRegistry mirrors the canonical users/sessions/email_verified
// history.
func threeStepRegistry() *migrate.Registry {
	r := migrate.NewRegistry()
	r.MustAdd(createTableUnit("0001_users", "users", "id INTEGER PRIMARY KEY, email TEXT NOT NULL UNIQUE"))
	r.MustAdd(createTableUnit("0002_sessions", "sessions",
		"id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL REFERENCES users (id)"))
	r.MustAdd(&migrate.Unit{
		ID: "0003_email_verified",
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasColumn(ctx, a, "users", "email_verified")
			if err != nil || ok {
				return err
			}
			_, err = a.Exec(ctx, "ALTER TABLE users ADD COLUMN email_verified INTEGER NOT NULL DEFAULT 0")
			return err
		},
		Revert: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasColumn(ctx, a, "users", "email_verified")
			if err != nil || !ok {
				return err
			}
			_, err = a.Exec(ctx, "ALTER TABLE users DROP COLUMN email_verified")
			return err
		},
	})
	return r
}

func newRunner(t *testing.T, db *dbx.DB, reg *migrate.Registry) *runner.Runner {
	t.Helper()
	r, err := runner.New(db, reg, runner.Options{LockTimeout: 2 * time.Second})
	require.NoError(t, err)
	return r
}

func appliedIDs(t *testing.T, st *runner.Status) []string {
	t.Helper()
	var ids []string
	for _, e := range st.Applied {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestFreshInstallToHead(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	summary, err := r.Up(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users", "0002_sessions", "0003_email_verified"}, summary.Applied)
	require.Equal(t, 1, summary.Batch)

	for _, table := range []string{"users", "sessions"} {
		ok, err := introspect.HasTable(ctx, db, table)
		require.NoError(t, err)
		require.True(t, ok, table)
	}
	ok, err := introspect.HasColumn(ctx, db, "users", "email_verified")
	require.NoError(t, err)
	require.True(t, ok)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.AtHead())
	require.Equal(t, []string{"0001_users", "0002_sessions", "0003_email_verified"}, appliedIDs(t, st))
}

func TestUpIsNoOpAtHead(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "")
	require.NoError(t, err)

	summary, err := r.Up(ctx, "")
	require.NoError(t, err)
	require.Empty(t, summary.Applied)
}

func TestEmptyRegistry(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, migrate.NewRegistry())

	summary, err := r.Up(ctx, "")
	require.NoError(t, err)
	require.Empty(t, summary.Applied)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.AtHead())
}

func TestUpToTarget(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	summary, err := r.Up(ctx, "0002_sessions")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users", "0002_sessions"}, summary.Applied)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0003_email_verified"}, st.Pending)
}

func TestUpUnknownTarget(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "0099_missing")
	require.ErrorIs(t, err, runner.ErrUnknownTarget)
}

func TestPartialRerunAfterFailure(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	// 0002 is interrupted after creating the table but before the ledger
	// commit. transactional_mode none means the partial effect persists.
	interrupted := true
	reg := migrate.NewRegistry()
	reg.MustAdd(createTableUnit("0001_users", "users", "id INTEGER PRIMARY KEY, email TEXT"))
	reg.MustAdd(&migrate.Unit{
		ID:     "0002_sessions",
		TxMode: migrate.TxNone,
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasTable(ctx, a, "sessions")
			if err != nil {
				return err
			}
			if !ok {
				if _, err := a.Exec(ctx, "CREATE TABLE sessions (id INTEGER PRIMARY KEY, user_id INTEGER)"); err != nil {
					return err
				}
			}
			if interrupted {
				return errors.New("connection lost")
			}
			return nil
		},
		Revert: func(ctx context.Context, a dbx.Adapter) error { return nil },
	})
	reg.MustAdd(createTableUnit("0003_profiles", "profiles", "id INTEGER PRIMARY KEY"))

	r := newRunner(t, db, reg)

	_, err := r.Up(ctx, "")
	var step *runner.StepError
	require.ErrorAs(t, err, &step)
	require.Equal(t, "0002_sessions", step.UnitID)
	require.Equal(t, runner.DirectionUp, step.Direction)

	// Partial effect persisted, ledger did not advance past 0001.
	ok, err := introspect.HasTable(ctx, db, "sessions")
	require.NoError(t, err)
	require.True(t, ok)
	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users"}, appliedIDs(t, st))
	require.Equal(t, []string{"0002_sessions", "0003_profiles"}, st.Pending)

	// Second invocation: the guard skips the create and the run completes.
	interrupted = false
	summary, err := r.Up(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"0002_sessions", "0003_profiles"}, summary.Applied)

	st, err = r.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.AtHead())
}

func TestWrapUnitIsAtomic(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	reg := migrate.NewRegistry()
	reg.MustAdd(&migrate.Unit{
		ID: "0001_boom",
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			if _, err := a.Exec(ctx, "CREATE TABLE half_done (id INTEGER)"); err != nil {
				return err
			}
			return errors.New("apply failed midway")
		},
	})
	r := newRunner(t, db, reg)

	_, err := r.Up(ctx, "")
	var step *runner.StepError
	require.ErrorAs(t, err, &step)
	require.Equal(t, "0001_boom", step.UnitID)

	// Neither the DDL nor the ledger row survived.
	ok, err := introspect.HasTable(ctx, db, "half_done")
	require.NoError(t, err)
	require.False(t, ok)
	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Empty(t, st.Applied)
}

func TestGuardedApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	// An out-of-band script already created the column the unit guards on.
	_, err := db.Exec(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, role TEXT)")
	require.NoError(t, err)

	reg := migrate.NewRegistry()
	reg.MustAdd(&migrate.Unit{
		ID: "0001_users_role",
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			ok, err := introspect.HasColumn(ctx, a, "users", "role")
			if err != nil || ok {
				return err
			}
			_, err = a.Exec(ctx, "ALTER TABLE users ADD COLUMN role TEXT")
			return err
		},
	})
	r := newRunner(t, db, reg)

	summary, err := r.Up(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users_role"}, summary.Applied)

	ok, err := introspect.HasColumn(ctx, db, "users", "role")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDownOneStep(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "")
	require.NoError(t, err)

	summary, err := r.Down(ctx, "0001_users")
	require.NoError(t, err)
	// M3 revert, then M2 revert, in that order.
	require.Equal(t, []string{"0003_email_verified", "0002_sessions"}, summary.Reverted)

	ok, err := introspect.HasTable(ctx, db, "sessions")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = introspect.HasColumn(ctx, db, "users", "email_verified")
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = introspect.HasTable(ctx, db, "users")
	require.NoError(t, err)
	require.True(t, ok)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users"}, appliedIDs(t, st))
}

func TestUpDownRoundTripRestoresSchema(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "0001_users")
	require.NoError(t, err)

	_, err = r.Up(ctx, "")
	require.NoError(t, err)
	_, err = r.Down(ctx, "0001_users")
	require.NoError(t, err)

	// Observationally equal to the pre-0002 schema.
	for table, want := range map[string]bool{"users": true, "sessions": false} {
		ok, err := introspect.HasTable(ctx, db, table)
		require.NoError(t, err)
		require.Equal(t, want, ok, table)
	}
}

func TestDownRequiresAppliedTarget(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "0001_users")
	require.NoError(t, err)

	_, err = r.Down(ctx, "0002_sessions")
	require.ErrorIs(t, err, runner.ErrUnknownTarget)

	_, err = r.Down(ctx, "")
	require.ErrorIs(t, err, runner.ErrUnknownTarget)
}

func TestDownIrreversibleUnit(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	reg := migrate.NewRegistry()
	reg.MustAdd(createTableUnit("0001_base", "base", "id INTEGER"))
	reg.MustAdd(&migrate.Unit{
		ID: "0002_one_way",
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			_, err := a.Exec(ctx, "CREATE TABLE one_way (id INTEGER)")
			return err
		},
		// No Revert: migrating down past this unit must fail.
	})
	r := newRunner(t, db, reg)

	_, err := r.Up(ctx, "")
	require.NoError(t, err)

	_, err = r.Down(ctx, "0001_base")
	var irr *runner.IrreversibleError
	require.ErrorAs(t, err, &irr)
	require.Equal(t, "0002_one_way", irr.UnitID)

	// Nothing was reverted.
	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.AtHead())
}

func TestOrphanDetectionAndRepair(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	_, err := r.Up(ctx, "")
	require.NoError(t, err)

	// A row from a registry the code no longer carries.
	store := ledger.NewStore(dbx.SQLite)
	require.NoError(t, store.Record(ctx, db, ledger.Entry{
		ID: "0000_retired", Batch: 1, AppliedAt: time.Now().UTC(),
	}))

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.AtHead())
	require.Len(t, st.Orphans, 1)
	require.Equal(t, "0000_retired", st.Orphans[0].ID)

	// Up refuses while drift persists.
	_, err = r.Up(ctx, "")
	require.ErrorIs(t, err, runner.ErrLedgerDrift)

	// An unmark plan clears the orphan without touching the schema.
	plan, err := repairplan.ParseString("plan", "unmark 0000_retired\n")
	require.NoError(t, err)
	require.NoError(t, r.Repair(ctx, plan))

	st, err = r.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.AtHead())
}

func TestRepairMarkSkipsApply(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	// Mark 0001 as applied even though its apply never ran.
	plan, err := repairplan.ParseString("plan", "mark 0001_users batch 7\n")
	require.NoError(t, err)
	require.NoError(t, r.Repair(ctx, plan))

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"0001_users"}, appliedIDs(t, st))
	require.Equal(t, 7, st.Applied[0].Batch)

	// The schema was not touched.
	ok, err := introspect.HasTable(ctx, db, "users")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRepairMarkUnknownUnit(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, threeStepRegistry())

	plan, err := repairplan.ParseString("plan", "mark 0099_missing\n")
	require.NoError(t, err)
	require.ErrorIs(t, r.Repair(ctx, plan), runner.ErrUnknownTarget)
}

func TestLockBlocksSecondRunner(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	// Hold the lock as an outside party.
	store := ledger.NewStore(dbx.SQLite)
	require.NoError(t, store.Ensure(ctx, db))
	holder := ledger.NewLock(dbx.SQLite)
	require.NoError(t, holder.Ensure(ctx, db))
	require.NoError(t, holder.Acquire(ctx, db, time.Second))

	r, err := runner.New(db, threeStepRegistry(), runner.Options{LockTimeout: 300 * time.Millisecond})
	require.NoError(t, err)
	_, err = r.Up(ctx, "")
	require.ErrorIs(t, err, ledger.ErrLockUnavailable)

	// Nothing committed while the lock was held elsewhere.
	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Empty(t, st.Applied)

	require.NoError(t, holder.Release(ctx, db))
	_, err = r.Up(ctx, "")
	require.NoError(t, err)
}

func TestSequentialRunnersCommitOnce(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	a := newRunner(t, db, threeStepRegistry())
	b := newRunner(t, db, threeStepRegistry())

	_, err := a.Up(ctx, "")
	require.NoError(t, err)
	summary, err := b.Up(ctx, "")
	require.NoError(t, err)
	require.Empty(t, summary.Applied, "second runner observes head and exits")

	// Exactly one ledger row per unit.
	var n int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM "+ledger.TableName).Scan(&n))
	require.Equal(t, 3, n)
}

func TestRunScriptBypassesLedger(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	r := newRunner(t, db, migrate.NewRegistry())

	script := createTableUnit("repair_adhoc", "patched", "id INTEGER")
	require.NoError(t, r.RunScript(ctx, script))
	// Re-running is safe: the guard makes it a no-op.
	require.NoError(t, r.RunScript(ctx, script))

	ok, err := introspect.HasTable(ctx, db, "patched")
	require.NoError(t, err)
	require.True(t, ok)

	st, err := r.Status(ctx)
	require.NoError(t, err)
	require.Empty(t, st.Applied, "scripts never write the ledger")
}

func TestCancellationBetweenUnits(t *testing.T) {
	db := testDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	reg := migrate.NewRegistry()
	reg.MustAdd(createTableUnit("0001_first", "first", "id INTEGER"))
	reg.MustAdd(&migrate.Unit{
		ID: "0002_cancels",
		Apply: func(ctx context.Context, a dbx.Adapter) error {
			cancel() // simulate an operator interrupt mid-plan
			_, err := a.Exec(ctx, "CREATE TABLE second (id INTEGER)")
			return err
		},
	})
	reg.MustAdd(createTableUnit("0003_never", "never", "id INTEGER"))

	r := newRunner(t, db, reg)
	_, err := r.Up(ctx, "")
	require.Error(t, err)

	// The next run picks up cleanly from the last committed unit.
	st, err := r.Status(context.Background())
	require.NoError(t, err)
	require.Contains(t, appliedIDs(t, st), "0001_first")
	require.NotContains(t, appliedIDs(t, st), "0003_never")
}
