package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate/ledger"
	"github.com/eoty-platform/eoty-db/migrate/runner"
)

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	return ee.code
}

func TestMapRunErrorExitCodes(t *testing.T) {
	require.NoError(t, mapRunError(nil))

	conn := fmt.Errorf("wrapped: %w", dbx.ErrConnection)
	require.Equal(t, ExitIOError, exitCode(t, mapRunError(conn)))

	// A ledger or catalog query failing outside any migration step is I/O,
	// not "pending migrations exist".
	sqlErr := &dbx.SQLError{Stmt: "SELECT 1 FROM _eoty_migrations", Err: errors.New("no such table")}
	require.Equal(t, ExitIOError, exitCode(t, mapRunError(sqlErr)))
	require.Equal(t, ExitIOError, exitCode(t, mapRunError(fmt.Errorf("failed to query ledger: %w", sqlErr))))

	// A SQL error inside a step stays a migration failure.
	step := &runner.StepError{
		UnitID:    "0005_courses",
		Direction: runner.DirectionUp,
		Err:       &dbx.SQLError{Stmt: "CREATE TABLE courses", Err: errors.New("boom")},
	}
	require.Equal(t, 1, exitCode(t, mapRunError(step)))

	require.Equal(t, 1, exitCode(t, mapRunError(ledger.ErrLockUnavailable)))

	// Unknown errors pass through for the generic handler.
	plain := errors.New("unrelated")
	require.Equal(t, plain, mapRunError(plain))
}
