// Package ledger persists the record of applied migration units and the
// advisory lock that serializes runner invocations. Both live in the same
// store so lock acquisition and ledger reads are linearizable.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/eoty-platform/eoty-db/dbx"
)

// TableName is the ledger table the engine owns.
const TableName = "_eoty_migrations"

// Entry is a single row persisted per successfully applied unit.
type Entry struct {
	ID        string
	Batch     int
	AppliedAt time.Time
	Checksum  string
}

// Store reads and writes ledger rows. Write operations take the adapter
// they must run on so the runner controls transaction boundaries.
type Store struct {
	provider dbx.Provider
}

// NewStore returns a ledger store for the provider.
func NewStore(provider dbx.Provider) *Store {
	return &Store{provider: provider}
}

// Ensure creates the ledger table when absent.
func (s *Store) Ensure(ctx context.Context, a dbx.Adapter) error {
	if _, err := a.Exec(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("failed to create ledger table: %w", err)
	}
	return nil
}

// Entries returns all ledger rows ordered by applied_at then id — the order
// units were actually applied, which reverts walk backwards.
func (s *Store) Entries(ctx context.Context, a dbx.Adapter) ([]Entry, error) {
	rows, err := a.Query(ctx, fmt.Sprintf(`
		SELECT id, batch, applied_at, checksum
		FROM %s
		ORDER BY applied_at ASC, id ASC`, TableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var checksum sql.NullString
		if err := rows.Scan(&e.ID, &e.Batch, &e.AppliedAt, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		e.Checksum = checksum.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// NextBatch returns max(batch)+1, starting at 1 on an empty ledger.
func (s *Store) NextBatch(ctx context.Context, a dbx.Adapter) (int, error) {
	var max sql.NullInt64
	err := a.QueryRow(ctx, fmt.Sprintf("SELECT MAX(batch) FROM %s", TableName)).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to query max batch: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// Record inserts the ledger row for an applied unit.
func (s *Store) Record(ctx context.Context, a dbx.Adapter, e Entry) error {
	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, batch, applied_at, checksum)
		VALUES (%s, %s, %s, %s)`,
		TableName,
		s.provider.Placeholder(1), s.provider.Placeholder(2),
		s.provider.Placeholder(3), s.provider.Placeholder(4))
	if _, err := a.Exec(ctx, stmt, e.ID, e.Batch, e.AppliedAt, e.Checksum); err != nil {
		return fmt.Errorf("failed to record %s: %w", e.ID, err)
	}
	return nil
}

// Remove deletes the ledger row for a reverted unit.
func (s *Store) Remove(ctx context.Context, a dbx.Adapter, id string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = %s", TableName, s.provider.Placeholder(1))
	if _, err := a.Exec(ctx, stmt, id); err != nil {
		return fmt.Errorf("failed to remove %s: %w", id, err)
	}
	return nil
}

func (s *Store) createTableSQL() string {
	switch s.provider {
	case dbx.Postgres:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				batch INTEGER NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum VARCHAR(64)
			)`, TableName)
	case dbx.MySQL:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				batch INT NOT NULL,
				applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum VARCHAR(64)
			)`, TableName)
	default:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				batch INTEGER NOT NULL,
				applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				checksum TEXT
			)`, TableName)
	}
}
