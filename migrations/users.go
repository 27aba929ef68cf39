package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func userUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0001_create_users",
			Notes: "Core account table. Email is the login identifier.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				return createTable(ctx, a, "users", fmt.Sprintf(`
					%s,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(120),
					password_hash VARCHAR(255) NOT NULL,
					%s`, pkCol(p), timestampCol(p, "created_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				return dropTable(ctx, a, "users")
			},
		},
		{
			ID:    "0002_create_sessions",
			Notes: "Login sessions keyed by opaque token.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				return createTable(ctx, a, "sessions", fmt.Sprintf(`
					%s,
					%s,
					token VARCHAR(128) NOT NULL UNIQUE,
					%s,
					expires_at %s`,
					pkCol(p), refCol(p, "user_id", "users"),
					timestampCol(p, "created_at"), tsType(p)))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				return dropTable(ctx, a, "sessions")
			},
		},
		{
			ID:    "0003_users_email_verified",
			Notes: "Adds the email verification flag, default false.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				return addColumn(ctx, a, "users", "email_verified",
					boolCol(a.Provider(), "email_verified", false))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				return dropColumn(ctx, a, "users", "email_verified")
			},
		},
		{
			ID:    "0004_roles_permissions",
			Notes: "Role and permission tables plus their join tables. Grants resolve by key, not by positional id.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "roles", fmt.Sprintf(`
					%s,
					%s,
					name VARCHAR(120) NOT NULL`, pkCol(p), keyCol(p))); err != nil {
					return err
				}
				if err := createTable(ctx, a, "permissions", fmt.Sprintf(`
					%s,
					%s,
					%s`, pkCol(p), keyCol(p), textCol(p, "description"))); err != nil {
					return err
				}
				if err := createTable(ctx, a, "role_permissions", fmt.Sprintf(`
					%s,
					%s,
					PRIMARY KEY (role_id, permission_id)`,
					refCol(p, "role_id", "roles"),
					refCol(p, "permission_id", "permissions"))); err != nil {
					return err
				}
				return createTable(ctx, a, "user_roles", fmt.Sprintf(`
					%s,
					%s,
					PRIMARY KEY (user_id, role_id)`,
					refCol(p, "user_id", "users"), refCol(p, "role_id", "roles")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				for _, t := range []string{"user_roles", "role_permissions", "permissions", "roles"} {
					if err := dropTable(ctx, a, t); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// tsType renders a nullable timestamp type with no default.
func tsType(p dbx.Provider) string {
	if p == dbx.SQLite {
		return "DATETIME"
	}
	return "TIMESTAMP"
}
