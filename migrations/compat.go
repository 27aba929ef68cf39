package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/dbx/introspect"
	"github.com/eoty-platform/eoty-db/migrate"
)

// compatUnits carries the units reconciling divergent schema history:
// a duplicate table definition, identifier type drift, and the auth-compat
// view that replaced the physical users table.
func compatUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID: "0014_chapters_rebuild",
			Notes: "Historical duplicate of the chapters table with a different " +
				"column set. Against a schema where 0005 already ran, the create " +
				"is a no-op and only the summary column is added.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				// Divergent history: this definition disagrees with 0005's.
				// The existence guard lets both claims succeed; the live
				// schema is whichever ran first plus the additions below.
				if err := createTable(ctx, a, "chapters", fmt.Sprintf(`
					%s,
					%s,
					position INTEGER NOT NULL,
					title VARCHAR(255) NOT NULL,
					%s`, pkCol(p), refCol(p, "course_id", "courses"),
					textCol(p, "summary"))); err != nil {
					return err
				}
				return addColumn(ctx, a, "chapters", "summary", textCol(p, "summary"))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				return dropColumn(ctx, a, "chapters", "summary")
			},
		},
		{
			ID: "0015_users_id_type",
			Notes: "Early deployments created users.id as text. Reconciles the " +
				"primary key and its referents to bigint with an explicit cast. " +
				"Not reversible: the original text ids are unrecoverable.",
			// MySQL cannot transact this DDL, so the unit runs unwrapped and
			// every branch is guarded by a live type check.
			TxMode: migrate.TxNone,
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				if err := reconcileIDType(ctx, a, "users", "id"); err != nil {
					return err
				}
				if err := reconcileIDType(ctx, a, "sessions", "user_id"); err != nil {
					return err
				}
				return reconcileIDType(ctx, a, "user_roles", "user_id")
			},
		},
		{
			ID: "0016_users_auth_view",
			Notes: "Replaces the physical users table with a view over " +
				"users_data for compatibility with the external auth library. " +
				"INSTEAD OF triggers keep inserts working through the view.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				isView, err := introspect.IsView(ctx, a, "users")
				if err != nil {
					return err
				}
				if isView {
					return nil
				}
				hasData, err := introspect.HasTable(ctx, a, "users_data")
				if err != nil {
					return err
				}
				if !hasData {
					if _, err := a.Exec(ctx, "ALTER TABLE users RENAME TO users_data"); err != nil {
						return err
					}
				}
				return createUsersView(ctx, a)
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				isView, err := introspect.IsView(ctx, a, "users")
				if err != nil {
					return err
				}
				if isView {
					if _, err := a.Exec(ctx, "DROP VIEW users"); err != nil {
						return err
					}
				}
				hasData, err := introspect.HasTable(ctx, a, "users_data")
				if err != nil {
					return err
				}
				if hasData {
					if _, err := a.Exec(ctx, "ALTER TABLE users_data RENAME TO users"); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// reconcileIDType casts a text-typed identifier column to bigint. A column
// already integral is left alone.
func reconcileIDType(ctx context.Context, a dbx.Adapter, table, column string) error {
	t, err := introspect.ColumnType(ctx, a, table, column)
	if err != nil {
		return err
	}
	if t == "" || !isTextType(t) {
		return nil
	}
	switch a.Provider() {
	case dbx.Postgres:
		_, err = a.Exec(ctx, fmt.Sprintf(
			"ALTER TABLE %s ALTER COLUMN %s TYPE BIGINT USING %s::bigint",
			a.QuoteIdent(table), a.QuoteIdent(column), a.QuoteIdent(column)))
	case dbx.MySQL:
		_, err = a.Exec(ctx, fmt.Sprintf(
			"ALTER TABLE %s MODIFY COLUMN %s BIGINT NOT NULL",
			a.QuoteIdent(table), a.QuoteIdent(column)))
	default:
		// SQLite column affinity already accepts integer ids; rewriting the
		// table is not worth the churn.
		return nil
	}
	return err
}

func isTextType(t string) bool {
	switch {
	case strings.HasPrefix(t, "varchar"), strings.HasPrefix(t, "character"),
		t == "text", t == "citext":
		return true
	}
	return false
}

// createUsersView creates the compatibility view and, where the engine
// supports them, the INSTEAD OF triggers that route writes to users_data.
func createUsersView(ctx context.Context, a dbx.Adapter) error {
	const viewSQL = `
		CREATE VIEW users AS
		SELECT id, email, display_name, password_hash, email_verified, created_at
		FROM users_data`
	if _, err := a.Exec(ctx, viewSQL); err != nil {
		return err
	}
	switch a.Provider() {
	case dbx.Postgres:
		if _, err := a.Exec(ctx, `
			CREATE OR REPLACE FUNCTION users_view_insert() RETURNS trigger AS $$
			BEGIN
				INSERT INTO users_data (email, display_name, password_hash, email_verified)
				VALUES (NEW.email, NEW.display_name, NEW.password_hash, COALESCE(NEW.email_verified, FALSE));
				RETURN NEW;
			END;
			$$ LANGUAGE plpgsql`); err != nil {
			return err
		}
		_, err := a.Exec(ctx, `
			CREATE TRIGGER users_insert
			INSTEAD OF INSERT ON users
			FOR EACH ROW EXECUTE FUNCTION users_view_insert()`)
		return err
	case dbx.SQLite:
		_, err := a.Exec(ctx, `
			CREATE TRIGGER users_insert INSTEAD OF INSERT ON users
			BEGIN
				INSERT INTO users_data (email, display_name, password_hash, email_verified)
				VALUES (NEW.email, NEW.display_name, NEW.password_hash, COALESCE(NEW.email_verified, 0));
			END`)
		return err
	default:
		// MySQL views over a single table are updatable without triggers.
		return nil
	}
}
