package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eoty-platform/eoty-db/dbx"
)

// LockTableName holds the advisory lock record.
const LockTableName = "_eoty_lock"

// lockName keys the single lock record every runner contends on.
const lockName = "eotydb"

// DefaultLockTimeout bounds how long Acquire waits for a competing runner.
const DefaultLockTimeout = 30 * time.Second

// staleAfter is the window after which a lock row left behind by a dead
// runner is reclaimed.
const staleAfter = 10 * time.Minute

// ErrLockUnavailable is returned when the lock could not be acquired within
// the timeout.
var ErrLockUnavailable = errors.New("another migration runner holds the lock")

// Lock is the exclusive advisory resource a runner holds for the duration
// of an invocation.
type Lock struct {
	provider dbx.Provider
	owner    string
}

// NewLock returns an unacquired lock with a fresh owner token.
func NewLock(provider dbx.Provider) *Lock {
	return &Lock{provider: provider, owner: uuid.NewString()}
}

// Owner returns the token identifying this lock holder.
func (l *Lock) Owner() string { return l.owner }

// Ensure creates the lock table when absent.
func (l *Lock) Ensure(ctx context.Context, a dbx.Adapter) error {
	var stmt string
	switch l.provider {
	case dbx.Postgres, dbx.MySQL:
		stmt = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name VARCHAR(64) PRIMARY KEY,
				owner VARCHAR(64) NOT NULL,
				acquired_at TIMESTAMP NOT NULL
			)`, LockTableName)
	default:
		stmt = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				name TEXT PRIMARY KEY,
				owner TEXT NOT NULL,
				acquired_at DATETIME NOT NULL
			)`, LockTableName)
	}
	if _, err := a.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create lock table: %w", err)
	}
	return nil
}

// Acquire takes the lock, polling until the timeout elapses. A lock row
// older than the stale window is treated as abandoned and taken over.
func (l *Lock) Acquire(ctx context.Context, a dbx.Adapter, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	deadline := time.Now().Add(timeout)
	backoff := 100 * time.Millisecond
	for {
		ok, err := l.tryAcquire(ctx, a)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrLockUnavailable
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}

func (l *Lock) tryAcquire(ctx context.Context, a dbx.Adapter) (bool, error) {
	now := time.Now().UTC()
	insert := fmt.Sprintf(
		"INSERT INTO %s (name, owner, acquired_at) VALUES (%s, %s, %s)",
		LockTableName,
		l.provider.Placeholder(1), l.provider.Placeholder(2), l.provider.Placeholder(3))
	if _, err := a.Exec(ctx, insert, lockName, l.owner, now); err == nil {
		return true, nil
	} else if !dbx.IsUniqueViolation(err) {
		// Only a duplicate-key insert means contention; anything else is a
		// real failure and must not poll until the timeout.
		return false, err
	}
	// Insert lost to an existing row. Reclaim it if stale.
	var owner string
	var acquiredAt time.Time
	query := fmt.Sprintf(
		"SELECT owner, acquired_at FROM %s WHERE name = %s",
		LockTableName, l.provider.Placeholder(1))
	err := a.QueryRow(ctx, query, lockName).Scan(&owner, &acquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lock row: %w", err)
	}
	if time.Since(acquiredAt) < staleAfter {
		return false, nil
	}
	update := fmt.Sprintf(
		"UPDATE %s SET owner = %s, acquired_at = %s WHERE name = %s AND owner = %s",
		LockTableName,
		l.provider.Placeholder(1), l.provider.Placeholder(2),
		l.provider.Placeholder(3), l.provider.Placeholder(4))
	res, err := a.Exec(ctx, update, l.owner, now, lockName, owner)
	if err != nil {
		return false, fmt.Errorf("failed to reclaim stale lock: %w", err)
	}
	return res.Affected == 1, nil
}

// Release drops the lock row if this holder still owns it.
func (l *Lock) Release(ctx context.Context, a dbx.Adapter) error {
	stmt := fmt.Sprintf(
		"DELETE FROM %s WHERE name = %s AND owner = %s",
		LockTableName, l.provider.Placeholder(1), l.provider.Placeholder(2))
	if _, err := a.Exec(ctx, stmt, lockName, l.owner); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
