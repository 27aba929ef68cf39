package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func notificationUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0012_notifications",
			Notes: "Per-user notification inbox.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "notifications", fmt.Sprintf(`
					%s,
					%s,
					kind VARCHAR(64) NOT NULL,
					%s,
					%s,
					%s`, pkCol(p), refCol(p, "user_id", "users"),
					textCol(p, "payload"), boolCol(p, "read", false),
					timestampCol(p, "created_at"))); err != nil {
					return err
				}
				return createIndex(ctx, a, "notifications", "idx_notifications_user", false, "user_id")
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropIndex(ctx, a, "notifications", "idx_notifications_user"); err != nil {
					return err
				}
				return dropTable(ctx, a, "notifications")
			},
		},
	}
}
