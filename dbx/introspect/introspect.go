// Package introspect provides existence predicates over the live database
// catalog. Every call issues a fresh query: earlier statements in the same
// migration unit may have created the object a later check asks about, so
// nothing is cached across calls.
package introspect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/eoty-platform/eoty-db/dbx"
)

// HasTable reports whether a base table with the given name exists.
func HasTable(ctx context.Context, a dbx.Adapter, table string) (bool, error) {
	switch a.Provider() {
	case dbx.Postgres:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public'
				  AND table_name = $1
				  AND table_type = 'BASE TABLE'
			)`, table)
	case dbx.MySQL:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = DATABASE()
				  AND table_name = ?
				  AND table_type = 'BASE TABLE'
			)`, table)
	case dbx.SQLite:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM sqlite_master
				WHERE type = 'table' AND name = ?
			)`, table)
	}
	return false, fmt.Errorf("unsupported provider %s", a.Provider())
}

// IsView reports whether the given name resolves to a view rather than a
// base table. A name may resolve to either; the runner treats both as valid
// targets.
func IsView(ctx context.Context, a dbx.Adapter, name string) (bool, error) {
	switch a.Provider() {
	case dbx.Postgres:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.views
				WHERE table_schema = 'public' AND table_name = $1
			)`, name)
	case dbx.MySQL:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.views
				WHERE table_schema = DATABASE() AND table_name = ?
			)`, name)
	case dbx.SQLite:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM sqlite_master
				WHERE type = 'view' AND name = ?
			)`, name)
	}
	return false, fmt.Errorf("unsupported provider %s", a.Provider())
}

// HasRelation reports whether name resolves to either a base table or a
// view.
func HasRelation(ctx context.Context, a dbx.Adapter, name string) (bool, error) {
	ok, err := HasTable(ctx, a, name)
	if err != nil || ok {
		return ok, err
	}
	return IsView(ctx, a, name)
}

// HasColumn reports whether the table (or view) has the named column.
func HasColumn(ctx context.Context, a dbx.Adapter, table, column string) (bool, error) {
	switch a.Provider() {
	case dbx.Postgres:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = 'public'
				  AND table_name = $1 AND column_name = $2
			)`, table, column)
	case dbx.MySQL:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = DATABASE()
				  AND table_name = ? AND column_name = ?
			)`, table, column)
	case dbx.SQLite:
		rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdent(table)))
		if err != nil {
			return false, err
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name, ctype string
			var notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				return false, fmt.Errorf("failed to scan table_info: %w", err)
			}
			if name == column {
				return true, nil
			}
		}
		return false, rows.Err()
	}
	return false, fmt.Errorf("unsupported provider %s", a.Provider())
}

// ColumnType returns the declared data type of a column, lower-cased, or ""
// when the column does not exist. Postgres reports the udt name (int8,
// text), MySQL and SQLite the declared type.
func ColumnType(ctx context.Context, a dbx.Adapter, table, column string) (string, error) {
	switch a.Provider() {
	case dbx.Postgres:
		var t sql.NullString
		err := a.QueryRow(ctx, `
			SELECT udt_name FROM information_schema.columns
			WHERE table_schema = 'public'
			  AND table_name = $1 AND column_name = $2`, table, column).Scan(&t)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to query column type: %w", err)
		}
		return strings.ToLower(t.String), nil
	case dbx.MySQL:
		var t sql.NullString
		err := a.QueryRow(ctx, `
			SELECT data_type FROM information_schema.columns
			WHERE table_schema = DATABASE()
			  AND table_name = ? AND column_name = ?`, table, column).Scan(&t)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to query column type: %w", err)
		}
		return strings.ToLower(t.String), nil
	case dbx.SQLite:
		rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdent(table)))
		if err != nil {
			return "", err
		}
		defer rows.Close()
		for rows.Next() {
			var cid int
			var name, ctype string
			var notNull, pk int
			var dflt sql.NullString
			if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
				return "", fmt.Errorf("failed to scan table_info: %w", err)
			}
			if name == column {
				return strings.ToLower(ctype), nil
			}
		}
		return "", rows.Err()
	}
	return "", fmt.Errorf("unsupported provider %s", a.Provider())
}

// HasIndexNamed reports whether an index with the given name exists on the
// table.
func HasIndexNamed(ctx context.Context, a dbx.Adapter, table, index string) (bool, error) {
	switch a.Provider() {
	case dbx.Postgres:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM pg_indexes
				WHERE schemaname = 'public'
				  AND tablename = $1 AND indexname = $2
			)`, table, index)
	case dbx.MySQL:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.statistics
				WHERE table_schema = DATABASE()
				  AND table_name = ? AND index_name = ?
			)`, table, index)
	case dbx.SQLite:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM sqlite_master
				WHERE type = 'index' AND tbl_name = ? AND name = ?
			)`, table, index)
	}
	return false, fmt.Errorf("unsupported provider %s", a.Provider())
}

// HasIndexOn reports whether any index covers exactly the given column set,
// regardless of its name. Column order within the set is ignored.
func HasIndexOn(ctx context.Context, a dbx.Adapter, table string, columns ...string) (bool, error) {
	want := append([]string(nil), columns...)
	sort.Strings(want)
	byIndex, err := indexColumns(ctx, a, table)
	if err != nil {
		return false, err
	}
	for _, cols := range byIndex {
		sort.Strings(cols)
		if equalStrings(cols, want) {
			return true, nil
		}
	}
	return false, nil
}

// HasConstraint reports whether the table carries a constraint with the
// given name. SQLite exposes no named-constraint catalog, so the check falls
// back to scanning the table's creation SQL.
func HasConstraint(ctx context.Context, a dbx.Adapter, table, constraint string) (bool, error) {
	switch a.Provider() {
	case dbx.Postgres:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				  AND table_name = $1 AND constraint_name = $2
			)`, table, constraint)
	case dbx.MySQL:
		return queryBool(ctx, a, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = DATABASE()
				  AND table_name = ? AND constraint_name = ?
			)`, table, constraint)
	case dbx.SQLite:
		var ddl sql.NullString
		err := a.QueryRow(ctx, `
			SELECT sql FROM sqlite_master
			WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to query table sql: %w", err)
		}
		return strings.Contains(strings.ToLower(ddl.String), strings.ToLower(constraint)), nil
	}
	return false, fmt.Errorf("unsupported provider %s", a.Provider())
}

// indexColumns maps index name to its ordered column list for a table.
func indexColumns(ctx context.Context, a dbx.Adapter, table string) (map[string][]string, error) {
	out := make(map[string][]string)
	switch a.Provider() {
	case dbx.Postgres:
		rows, err := a.Query(ctx, `
			SELECT i.relname, a.attname
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_class i ON i.oid = ix.indexrelid
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			JOIN pg_namespace n ON n.oid = t.relnamespace
			WHERE n.nspname = 'public' AND t.relname = $1
			ORDER BY i.relname, a.attnum`, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var idx, col string
			if err := rows.Scan(&idx, &col); err != nil {
				return nil, fmt.Errorf("failed to scan index column: %w", err)
			}
			out[idx] = append(out[idx], col)
		}
		return out, rows.Err()
	case dbx.MySQL:
		rows, err := a.Query(ctx, `
			SELECT index_name, column_name
			FROM information_schema.statistics
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY index_name, seq_in_index`, table)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var idx, col string
			if err := rows.Scan(&idx, &col); err != nil {
				return nil, fmt.Errorf("failed to scan index column: %w", err)
			}
			out[idx] = append(out[idx], col)
		}
		return out, rows.Err()
	case dbx.SQLite:
		rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA index_list(%s)", a.QuoteIdent(table)))
		if err != nil {
			return nil, err
		}
		var names []string
		for rows.Next() {
			var seq int
			var name, origin string
			var unique, partial int
			if err := rows.Scan(&seq, &name, &unique, &origin, &partial); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan index_list: %w", err)
			}
			names = append(names, name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
		for _, name := range names {
			cols, err := sqliteIndexInfo(ctx, a, name)
			if err != nil {
				return nil, err
			}
			out[name] = cols
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported provider %s", a.Provider())
}

func sqliteIndexInfo(ctx context.Context, a dbx.Adapter, index string) ([]string, error) {
	rows, err := a.Query(ctx, fmt.Sprintf("PRAGMA index_info(%s)", a.QuoteIdent(index)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var seqno, cid int
		var name sql.NullString
		if err := rows.Scan(&seqno, &cid, &name); err != nil {
			return nil, fmt.Errorf("failed to scan index_info: %w", err)
		}
		if name.Valid {
			cols = append(cols, name.String)
		}
	}
	return cols, rows.Err()
}

func queryBool(ctx context.Context, a dbx.Adapter, query string, args ...any) (bool, error) {
	var ok bool
	if err := a.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to query catalog: %w", err)
	}
	return ok, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
