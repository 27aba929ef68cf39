// Package runner reconciles the migration ledger with the registry: it
// applies pending units in order, reverts applied units in reverse order,
// and adjusts the ledger from repair plans. A single advisory lock
// serializes invocations against the same database.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/internal/debug"
	"github.com/eoty-platform/eoty-db/migrate"
	"github.com/eoty-platform/eoty-db/migrate/ledger"
	"github.com/eoty-platform/eoty-db/migrate/repairplan"
)

// Direction labels which action of a unit a step executes.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var (
	// ErrLedgerDrift is returned by Up when the ledger contains entries
	// whose id is no longer in the registry. Status tolerates drift and
	// reports the orphans instead.
	ErrLedgerDrift = errors.New("ledger contains entries not in the registry")

	// ErrUnknownTarget is returned when a target id matches no unit.
	ErrUnknownTarget = errors.New("unknown target migration")
)

// StepError reports the first failing unit of an invocation. Later units
// are never attempted; the ledger reflects reality as of the last committed
// step.
type StepError struct {
	UnitID    string
	Direction Direction
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("migration %s (%s) failed: %v", e.UnitID, e.Direction, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// IrreversibleError is returned by Down when the plan crosses a unit with
// no declared revert action.
type IrreversibleError struct {
	UnitID string
}

func (e *IrreversibleError) Error() string {
	return fmt.Sprintf("migration %s declares no revert action", e.UnitID)
}

// Options tunes a Runner.
type Options struct {
	// LockTimeout bounds the wait for a competing runner. Defaults to
	// ledger.DefaultLockTimeout.
	LockTimeout time.Duration
}

// Runner owns the ledger and the lock. The registry is read-only at
// runtime.
type Runner struct {
	db          *dbx.DB
	registry    *migrate.Registry
	store       *ledger.Store
	lockTimeout time.Duration
}

// New freezes the registry and returns a runner over the database.
func New(db *dbx.DB, registry *migrate.Registry, opts Options) (*Runner, error) {
	if err := registry.Freeze(); err != nil {
		return nil, err
	}
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = ledger.DefaultLockTimeout
	}
	return &Runner{
		db:          db,
		registry:    registry,
		store:       ledger.NewStore(db.Provider()),
		lockTimeout: timeout,
	}, nil
}

// Registry exposes the frozen registry the runner executes from.
func (r *Runner) Registry() *migrate.Registry { return r.registry }

// Status is the ordered diff between ledger and registry.
type Status struct {
	// Applied lists ledger entries in applied order.
	Applied []ledger.Entry
	// Pending lists registry unit ids with no ledger entry, in apply order.
	Pending []string
	// Orphans lists ledger entries whose id is no longer in the registry.
	Orphans []ledger.Entry
}

// AtHead reports whether every registry unit has a ledger entry and no
// orphans remain.
func (s *Status) AtHead() bool { return len(s.Pending) == 0 && len(s.Orphans) == 0 }

// Status computes the diff without taking the lock; the ledger is readable
// concurrently with a running invocation.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	if err := r.store.Ensure(ctx, r.db); err != nil {
		return nil, err
	}
	entries, err := r.store.Entries(ctx, r.db)
	if err != nil {
		return nil, err
	}
	return r.diff(entries), nil
}

func (r *Runner) diff(entries []ledger.Entry) *Status {
	st := &Status{}
	applied := make(map[string]bool, len(entries))
	for _, e := range entries {
		applied[e.ID] = true
		if r.registry.Lookup(e.ID) == nil {
			st.Orphans = append(st.Orphans, e)
		} else {
			st.Applied = append(st.Applied, e)
		}
	}
	for _, u := range r.registry.Units() {
		if !applied[u.ID] {
			st.Pending = append(st.Pending, u.ID)
		}
	}
	return st
}

// Summary reports what an invocation committed.
type Summary struct {
	Batch    int
	Applied  []string
	Reverted []string
}

// Up applies pending units in registry order, up to and including target,
// or to head when target is empty. The first failing unit aborts the
// invocation.
func (r *Runner) Up(ctx context.Context, target string) (*Summary, error) {
	if target != "" && r.registry.Lookup(target) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	summary := &Summary{}
	err := r.withLock(ctx, func() error {
		entries, err := r.store.Entries(ctx, r.db)
		if err != nil {
			return err
		}
		st := r.diff(entries)
		if len(st.Orphans) > 0 {
			return fmt.Errorf("%w (first orphan: %s); run a repair plan first",
				ErrLedgerDrift, st.Orphans[0].ID)
		}
		plan := r.planUp(st, target)
		if len(plan) == 0 {
			debug.Debug("nothing to apply")
			return nil
		}
		batch, err := r.store.NextBatch(ctx, r.db)
		if err != nil {
			return err
		}
		summary.Batch = batch
		for _, u := range plan {
			if err := ctx.Err(); err != nil {
				return err
			}
			debug.Debug("applying migration", "id", u.ID, "txmode", u.TxMode.String())
			if err := r.applyOne(ctx, u, batch); err != nil {
				return &StepError{UnitID: u.ID, Direction: DirectionUp, Err: err}
			}
			summary.Applied = append(summary.Applied, u.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// planUp selects pending units in registry order, stopping after target.
func (r *Runner) planUp(st *Status, target string) []*migrate.Unit {
	pending := make(map[string]bool, len(st.Pending))
	for _, id := range st.Pending {
		pending[id] = true
	}
	var plan []*migrate.Unit
	for _, u := range r.registry.Units() {
		if pending[u.ID] {
			plan = append(plan, u)
		}
		if target != "" && u.ID == target {
			break
		}
	}
	return plan
}

func (r *Runner) applyOne(ctx context.Context, u *migrate.Unit, batch int) error {
	entry := ledger.Entry{
		ID:        u.ID,
		Batch:     batch,
		AppliedAt: time.Now().UTC(),
		Checksum:  u.Checksum,
	}
	switch u.TxMode {
	case migrate.TxWrap:
		return r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
			if err := u.Apply(ctx, tx); err != nil {
				return err
			}
			return r.store.Record(ctx, tx, entry)
		})
	case migrate.TxOwn:
		if err := u.Apply(ctx, r.db); err != nil {
			return err
		}
		return r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
			return r.store.Record(ctx, tx, entry)
		})
	default: // TxNone
		if err := u.Apply(ctx, r.db); err != nil {
			return err
		}
		return r.store.Record(ctx, r.db, entry)
	}
}

// Down reverts applied units in reverse applied order, down to but not
// including target. Orphan entries past the target are drift and abort the
// invocation.
func (r *Runner) Down(ctx context.Context, target string) (*Summary, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: down requires a target", ErrUnknownTarget)
	}
	if r.registry.Lookup(target) == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}
	summary := &Summary{}
	err := r.withLock(ctx, func() error {
		entries, err := r.store.Entries(ctx, r.db)
		if err != nil {
			return err
		}
		found := false
		for _, e := range entries {
			if e.ID == target {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q is not applied", ErrUnknownTarget, target)
		}
		// Revert in reverse of the order units were actually applied, which
		// may differ from registry order when history diverged.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if e.ID == target {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			u := r.registry.Lookup(e.ID)
			if u == nil {
				return fmt.Errorf("%w (orphan: %s)", ErrLedgerDrift, e.ID)
			}
			if !u.Reversible() {
				return &IrreversibleError{UnitID: u.ID}
			}
			debug.Debug("reverting migration", "id", u.ID, "txmode", u.TxMode.String())
			if err := r.revertOne(ctx, u); err != nil {
				return &StepError{UnitID: u.ID, Direction: DirectionDown, Err: err}
			}
			summary.Reverted = append(summary.Reverted, u.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (r *Runner) revertOne(ctx context.Context, u *migrate.Unit) error {
	switch u.TxMode {
	case migrate.TxWrap:
		return r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
			if err := u.Revert(ctx, tx); err != nil {
				return err
			}
			return r.store.Remove(ctx, tx, u.ID)
		})
	case migrate.TxOwn:
		if err := u.Revert(ctx, r.db); err != nil {
			return err
		}
		return r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
			return r.store.Remove(ctx, tx, u.ID)
		})
	default: // TxNone
		if err := u.Revert(ctx, r.db); err != nil {
			return err
		}
		return r.store.Remove(ctx, r.db, u.ID)
	}
}

// Repair applies a plan of ledger adjustments inside one transaction
// without running any apply or revert action.
func (r *Runner) Repair(ctx context.Context, plan *repairplan.Plan) error {
	for _, op := range plan.Ops {
		if op.Mark && r.registry.Lookup(op.UnitID) == nil {
			return fmt.Errorf("%w: cannot mark %q", ErrUnknownTarget, op.UnitID)
		}
	}
	return r.withLock(ctx, func() error {
		batch, err := r.store.NextBatch(ctx, r.db)
		if err != nil {
			return err
		}
		return r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
			for _, op := range plan.Ops {
				if op.Mark {
					b := op.Batch
					if b == 0 {
						b = batch
					}
					u := r.registry.Lookup(op.UnitID)
					entry := ledger.Entry{
						ID:        op.UnitID,
						Batch:     b,
						AppliedAt: time.Now().UTC(),
						Checksum:  u.Checksum,
					}
					debug.Debug("repair: marking", "id", op.UnitID, "batch", b)
					if err := r.store.Record(ctx, tx, entry); err != nil {
						return err
					}
				} else {
					debug.Debug("repair: unmarking", "id", op.UnitID)
					if err := r.store.Remove(ctx, tx, op.UnitID); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
}

// RunScript executes a unit outside the ledger: the out-of-band repair
// script mode. The lock is still taken so scripts never race a migration.
func (r *Runner) RunScript(ctx context.Context, u *migrate.Unit) error {
	return r.withLock(ctx, func() error {
		debug.Debug("running repair script", "id", u.ID)
		var err error
		if u.TxMode == migrate.TxWrap {
			err = r.db.WithTransaction(ctx, func(tx dbx.Adapter) error {
				return u.Apply(ctx, tx)
			})
		} else {
			err = u.Apply(ctx, r.db)
		}
		if err != nil {
			return &StepError{UnitID: u.ID, Direction: DirectionUp, Err: err}
		}
		return nil
	})
}

// withLock ensures the engine tables exist, takes the advisory lock, runs
// fn, and releases the lock even when fn fails. The lock is exclusive, so
// ledger reads inside fn see a state no competing runner can change before
// Release; reading after Acquire is equivalent to reading inside the
// acquiring transaction.
func (r *Runner) withLock(ctx context.Context, fn func() error) error {
	if err := r.store.Ensure(ctx, r.db); err != nil {
		return err
	}
	lock := ledger.NewLock(r.db.Provider())
	if err := lock.Ensure(ctx, r.db); err != nil {
		return err
	}
	if err := lock.Acquire(ctx, r.db, r.lockTimeout); err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so cancellation does not leak the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx, r.db); err != nil {
			debug.Warn("failed to release lock", "error", err)
		}
	}()
	return fn()
}
