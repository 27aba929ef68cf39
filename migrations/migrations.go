// Package migrations holds the EOTY platform's schema history as ordered
// migration units. Every DDL statement is guarded by a catalog check so any
// unit can be re-run over a partially advanced schema.
package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/dbx/introspect"
	"github.com/eoty-platform/eoty-db/migrate"
)

// Registry returns the full ordered migration set.
func Registry() *migrate.Registry {
	r := migrate.NewRegistry()
	for _, u := range all() {
		r.MustAdd(u)
	}
	return r
}

func all() []*migrate.Unit {
	var units []*migrate.Unit
	units = append(units, userUnits()...)
	units = append(units, courseUnits()...)
	units = append(units, quizUnits()...)
	units = append(units, forumUnits()...)
	units = append(units, badgeUnits()...)
	units = append(units, moderationUnits()...)
	units = append(units, notificationUnits()...)
	units = append(units, translationUnits()...)
	units = append(units, compatUnits()...)
	return units
}

// Column renderers quote every name they emit so reserved words ("key",
// "read") stay valid DDL on all three providers.

// pkCol renders the auto-incrementing integer primary key column.
func pkCol(p dbx.Provider) string {
	id := dbx.QuoteIdent(p, "id")
	switch p {
	case dbx.Postgres:
		return id + " BIGSERIAL PRIMARY KEY"
	case dbx.MySQL:
		return id + " BIGINT AUTO_INCREMENT PRIMARY KEY"
	default:
		return id + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// boolCol renders a boolean column with a default.
func boolCol(p dbx.Provider, name string, dflt bool) string {
	lit := "FALSE"
	if dflt {
		lit = "TRUE"
	}
	if p == dbx.SQLite {
		lit = "0"
		if dflt {
			lit = "1"
		}
		return fmt.Sprintf("%s INTEGER NOT NULL DEFAULT %s", dbx.QuoteIdent(p, name), lit)
	}
	return fmt.Sprintf("%s BOOLEAN NOT NULL DEFAULT %s", dbx.QuoteIdent(p, name), lit)
}

// timestampCol renders a timestamp column defaulting to now.
func timestampCol(p dbx.Provider, name string) string {
	if p == dbx.SQLite {
		return fmt.Sprintf("%s DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP", dbx.QuoteIdent(p, name))
	}
	return fmt.Sprintf("%s TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP", dbx.QuoteIdent(p, name))
}

// textCol renders an unbounded text column.
func textCol(p dbx.Provider, name string) string {
	return fmt.Sprintf("%s TEXT", dbx.QuoteIdent(p, name))
}

// keyCol renders the natural-key column used by roles, permissions, and
// badges. "key" is reserved on MySQL, so the name is always quoted.
func keyCol(p dbx.Provider) string {
	return fmt.Sprintf("%s VARCHAR(64) NOT NULL UNIQUE", dbx.QuoteIdent(p, "key"))
}

// createTable creates a table only when nothing else claims the name. Two
// units that both claim the same table therefore both succeed: the later
// one becomes a no-op. A view under the name also suppresses the create,
// so early units stay re-runnable after the name was converted to a view.
func createTable(ctx context.Context, a dbx.Adapter, name, body string) error {
	ok, err := introspect.HasRelation(ctx, a, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = a.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", a.QuoteIdent(name), body))
	return err
}

// dropTable drops a table only when present.
func dropTable(ctx context.Context, a dbx.Adapter, name string) error {
	ok, err := introspect.HasTable(ctx, a, name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = a.Exec(ctx, fmt.Sprintf("DROP TABLE %s", a.QuoteIdent(name)))
	return err
}

// addColumn adds a column only when absent.
func addColumn(ctx context.Context, a dbx.Adapter, table, column, definition string) error {
	ok, err := introspect.HasColumn(ctx, a, table, column)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	_, err = a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s",
		a.QuoteIdent(table), definition))
	return err
}

// dropColumn drops a column only when present.
func dropColumn(ctx context.Context, a dbx.Adapter, table, column string) error {
	ok, err := introspect.HasColumn(ctx, a, table, column)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = a.Exec(ctx, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		a.QuoteIdent(table), a.QuoteIdent(column)))
	return err
}

// createIndex creates a named index only when absent.
func createIndex(ctx context.Context, a dbx.Adapter, table, name string, unique bool, columns ...string) error {
	ok, err := introspect.HasIndexNamed(ctx, a, table, name)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	cols := ""
	for i, c := range columns {
		if i > 0 {
			cols += ", "
		}
		cols += a.QuoteIdent(c)
	}
	_, err = a.Exec(ctx, fmt.Sprintf("CREATE %s %s ON %s (%s)",
		kind, a.QuoteIdent(name), a.QuoteIdent(table), cols))
	return err
}

// dropIndex drops a named index only when present.
func dropIndex(ctx context.Context, a dbx.Adapter, table, name string) error {
	ok, err := introspect.HasIndexNamed(ctx, a, table, name)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	stmt := fmt.Sprintf("DROP INDEX %s", a.QuoteIdent(name))
	if a.Provider() == dbx.MySQL {
		stmt = fmt.Sprintf("DROP INDEX %s ON %s", a.QuoteIdent(name), a.QuoteIdent(table))
	}
	_, err = a.Exec(ctx, stmt)
	return err
}

// refCol renders a foreign key column referencing another table's id.
func refCol(p dbx.Provider, name, refTable string) string {
	t := "BIGINT"
	if p == dbx.SQLite {
		t = "INTEGER"
	}
	return fmt.Sprintf("%s %s NOT NULL REFERENCES %s (%s)",
		dbx.QuoteIdent(p, name), t, dbx.QuoteIdent(p, refTable), dbx.QuoteIdent(p, "id"))
}
