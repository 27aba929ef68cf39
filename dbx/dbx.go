// Package dbx wraps database/sql with the small surface the migration
// engine needs: statement execution, transactions, and identifier quoting.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Provider identifies the underlying database engine.
type Provider string

const (
	Postgres Provider = "postgres"
	MySQL    Provider = "mysql"
	SQLite   Provider = "sqlite"
)

// ParseProvider normalizes a provider name from configuration.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

// DriverName returns the database/sql driver name for the provider.
func (p Provider) DriverName() string {
	switch p {
	case Postgres:
		return "postgres"
	case MySQL:
		return "mysql"
	case SQLite:
		return "sqlite3"
	}
	return string(p)
}

// Placeholder returns the parameter placeholder for the n-th (1-based)
// argument in a statement for this provider.
func (p Provider) Placeholder(n int) string {
	if p == Postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

var (
	// ErrConnection marks transport-level failures. No partial statement
	// effect is assumed when an error wraps it.
	ErrConnection = errors.New("connection error")

	// ErrNestedTransaction is returned when WithTransaction is called on an
	// adapter that is already inside a transaction.
	ErrNestedTransaction = errors.New("nested transaction")
)

// SQLError wraps a failed statement with the statement text.
type SQLError struct {
	Stmt string
	Err  error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("sql error: %v (statement: %s)", e.Err, shorten(e.Stmt))
}

func (e *SQLError) Unwrap() error { return e.Err }

func shorten(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

// Result reports the outcome of a statement execution.
type Result struct {
	Affected int64
}

// Adapter is the execution surface handed to migration and seed units.
// Implementations are not safe for concurrent use.
type Adapter interface {
	// Exec runs a statement with optional parameters.
	Exec(ctx context.Context, stmt string, args ...any) (Result, error)
	// Query runs a query and returns the rows. Callers must close them.
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	// QueryRow runs a query expected to return at most one row.
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	// WithTransaction runs fn inside a single transaction, committing on nil
	// return and rolling back on error. Nesting fails with
	// ErrNestedTransaction.
	WithTransaction(ctx context.Context, fn func(Adapter) error) error
	// Provider reports the engine behind the adapter.
	Provider() Provider
	// QuoteIdent quotes an identifier, preserving case.
	QuoteIdent(name string) string
}

// DB is the root Adapter over a live connection pool.
type DB struct {
	sqlDB    *sql.DB
	provider Provider
}

// Open connects to the database identified by the provider and DSN and
// verifies the connection with a ping.
func Open(ctx context.Context, provider Provider, dsn string) (*DB, error) {
	sqlDB, err := sql.Open(provider.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrConnection, provider, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrConnection, provider, err)
	}
	return &DB{sqlDB: sqlDB, provider: provider}, nil
}

// Wrap builds a DB around an already-open *sql.DB. Used by tests and by
// callers that manage the pool themselves.
func Wrap(sqlDB *sql.DB, provider Provider) *DB {
	return &DB{sqlDB: sqlDB, provider: provider}
}

// Close releases the underlying pool.
func (d *DB) Close() error { return d.sqlDB.Close() }

// SQLDB exposes the raw pool for callers that need driver-specific access.
func (d *DB) SQLDB() *sql.DB { return d.sqlDB }

// Exec implements Adapter.
func (d *DB) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := d.sqlDB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, classify(stmt, err)
	}
	affected, _ := res.RowsAffected()
	return Result{Affected: affected}, nil
}

// Query implements Adapter.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := d.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(query, err)
	}
	return rows, nil
}

// QueryRow implements Adapter.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sqlDB.QueryRowContext(ctx, query, args...)
}

// WithTransaction implements Adapter.
func (d *DB) WithTransaction(ctx context.Context, fn func(Adapter) error) error {
	tx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrConnection, err)
	}
	txa := &txAdapter{tx: tx, provider: d.provider}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(txa); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Provider implements Adapter.
func (d *DB) Provider() Provider { return d.provider }

// QuoteIdent implements Adapter.
func (d *DB) QuoteIdent(name string) string { return QuoteIdent(d.provider, name) }

// txAdapter is the Adapter handed to WithTransaction callbacks.
type txAdapter struct {
	tx       *sql.Tx
	provider Provider
}

func (t *txAdapter) Exec(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return Result{}, classify(stmt, err)
	}
	affected, _ := res.RowsAffected()
	return Result{Affected: affected}, nil
}

func (t *txAdapter) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(query, err)
	}
	return rows, nil
}

func (t *txAdapter) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *txAdapter) WithTransaction(ctx context.Context, fn func(Adapter) error) error {
	return ErrNestedTransaction
}

func (t *txAdapter) Provider() Provider { return t.provider }

func (t *txAdapter) QuoteIdent(name string) string { return QuoteIdent(t.provider, name) }

// QuoteIdent quotes a single identifier for the provider. Quote characters
// inside the name are doubled so case-sensitive names survive round trips.
func QuoteIdent(p Provider, name string) string {
	if p == MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IsUniqueViolation reports whether err is a primary-key or unique
// constraint violation from any of the supported drivers. Callers use it to
// tell an insert that lost a race apart from a statement that failed.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// classify wraps a statement failure. Context and driver connection errors
// map to ErrConnection; everything else becomes a SQLError.
func classify(stmt string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return &SQLError{Stmt: stmt, Err: err}
}
