package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func moderationUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0011_moderation",
			Notes: "Abuse reports against posts and the sanctions issued from them.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "reports", fmt.Sprintf(`
					%s,
					%s,
					%s,
					reason VARCHAR(64) NOT NULL,
					%s,
					status VARCHAR(32) NOT NULL DEFAULT 'open',
					%s`, pkCol(p), refCol(p, "post_id", "posts"),
					refCol(p, "reporter_id", "users"), textCol(p, "detail"),
					timestampCol(p, "created_at"))); err != nil {
					return err
				}
				return createTable(ctx, a, "sanctions", fmt.Sprintf(`
					%s,
					%s,
					%s,
					kind VARCHAR(32) NOT NULL,
					expires_at %s,
					%s`, pkCol(p), refCol(p, "user_id", "users"),
					refCol(p, "issued_by", "users"), tsType(p),
					timestampCol(p, "created_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropTable(ctx, a, "sanctions"); err != nil {
					return err
				}
				return dropTable(ctx, a, "reports")
			},
		},
	}
}
