package commands

import (
	"context"
	"errors"
	"time"

	"github.com/eoty-platform/eoty-db/cli/internal/config"
	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
	"github.com/eoty-platform/eoty-db/migrate/ledger"
	"github.com/eoty-platform/eoty-db/migrate/runner"
	"github.com/eoty-platform/eoty-db/migrations"
)

// session bundles what every command needs: config, an open database, and
// a runner over the full registry.
type session struct {
	cfg    *config.Config
	db     *dbx.DB
	runner *runner.Runner
}

func (s *session) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openSession loads config, connects, and builds the runner. Connection
// failures surface as ExitIOError.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	db, err := dbx.Open(ctx, cfg.Provider, dsn)
	if err != nil {
		return nil, exitWith(ExitIOError, "cannot reach database: %v", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	r, err := runner.New(db, reg, runner.Options{
		LockTimeout: time.Duration(cfg.LockTimeoutSeconds) * time.Second,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &session{cfg: cfg, db: db, runner: r}, nil
}

// buildRegistry combines the built-in migration corpus with SQL file units
// from the configured directory, when any.
func buildRegistry(cfg *config.Config) (*migrate.Registry, error) {
	reg := migrations.Registry()
	if cfg.MigrationsDir != "" {
		if err := migrate.LoadDir(config.AppFs, cfg.MigrationsDir, reg); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// mapRunError converts engine errors to exit-coded CLI errors. A failing
// migration step is exit 1 even when the underlying cause is a SQL error;
// SQL failures outside any step (catalog or ledger queries) are I/O.
func mapRunError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dbx.ErrConnection) {
		return exitWith(ExitIOError, "%v", err)
	}
	var step *runner.StepError
	if errors.As(err, &step) {
		return exitWith(1, "migration %s (%s) failed: %v", step.UnitID, step.Direction, step.Err)
	}
	if errors.Is(err, ledger.ErrLockUnavailable) {
		return exitWith(1, "%v", err)
	}
	var sqlErr *dbx.SQLError
	if errors.As(err, &sqlErr) {
		return exitWith(ExitIOError, "%v", err)
	}
	return err
}
