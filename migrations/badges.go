package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func badgeUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0010_badges",
			Notes: "Gamification: badge definitions and per-user awards.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "badges", fmt.Sprintf(`
					%s,
					%s,
					name VARCHAR(120) NOT NULL,
					%s,
					icon VARCHAR(255)`, pkCol(p), keyCol(p), textCol(p, "description"))); err != nil {
					return err
				}
				return createTable(ctx, a, "user_badges", fmt.Sprintf(`
					%s,
					%s,
					%s,
					PRIMARY KEY (user_id, badge_id)`,
					refCol(p, "user_id", "users"), refCol(p, "badge_id", "badges"),
					timestampCol(p, "awarded_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropTable(ctx, a, "user_badges"); err != nil {
					return err
				}
				return dropTable(ctx, a, "badges")
			},
		},
	}
}
