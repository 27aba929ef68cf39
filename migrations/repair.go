package migrations

import (
	"context"
	"fmt"
	"strings"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

// RepairScripts returns the out-of-band reconciliation scripts. They share
// the unit shape but never touch the ledger, so each must be fully guarded
// and safe to run any number of times against any schema state.
func RepairScripts() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID: "repair_moderation_columns",
			Notes: "Adds moderation columns that some deployments are missing " +
				"even though their ledger says 0011 ran.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := addColumn(ctx, a, "reports", "resolved_at",
					fmt.Sprintf("resolved_at %s", tsType(p))); err != nil {
					return err
				}
				return addColumn(ctx, a, "posts", "hidden_reason",
					"hidden_reason VARCHAR(255)")
			},
		},
		{
			ID: "repair_user_id_type",
			Notes: "Ad-hoc version of the 0015 type reconciliation for " +
				"databases that predate it.",
			TxMode: migrate.TxNone,
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				if err := reconcileIDType(ctx, a, "users", "id"); err != nil {
					return err
				}
				return reconcileIDType(ctx, a, "sessions", "user_id")
			},
		},
		{
			ID:    "repair_course_slugs",
			Notes: "Backfills empty course slugs from titles.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				rows, err := a.Query(ctx, `
					SELECT id, title FROM courses
					WHERE slug IS NULL OR slug = ''`)
				if err != nil {
					return err
				}
				type row struct {
					id    int64
					title string
				}
				var missing []row
				for rows.Next() {
					var r row
					if err := rows.Scan(&r.id, &r.title); err != nil {
						rows.Close()
						return err
					}
					missing = append(missing, r)
				}
				if err := rows.Err(); err != nil {
					rows.Close()
					return err
				}
				rows.Close()
				p := a.Provider()
				for _, r := range missing {
					_, err := a.Exec(ctx, fmt.Sprintf(
						"UPDATE courses SET slug = %s WHERE id = %s",
						p.Placeholder(1), p.Placeholder(2)),
						slugify(r.title, r.id), r.id)
					if err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

// LookupRepairScript returns the script with the given id, or nil.
func LookupRepairScript(id string) *migrate.Unit {
	for _, u := range RepairScripts() {
		if u.ID == id {
			return u
		}
	}
	return nil
}

// slugify derives a URL slug from a title, suffixed with the row id to keep
// the unique constraint satisfied.
func slugify(title string, id int64) string {
	var b strings.Builder
	lastDash := true
	for _, c := range strings.ToLower(title) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		return fmt.Sprintf("course-%d", id)
	}
	return fmt.Sprintf("%s-%d", s, id)
}
