package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func forumUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0008_forums",
			Notes: "Discussion threads and posts, optionally attached to a course.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "threads", fmt.Sprintf(`
					%s,
					%s,
					course_id BIGINT,
					title VARCHAR(255) NOT NULL,
					%s,
					%s`, pkCol(p), refCol(p, "author_id", "users"),
					boolCol(p, "locked", false), timestampCol(p, "created_at"))); err != nil {
					return err
				}
				return createTable(ctx, a, "posts", fmt.Sprintf(`
					%s,
					%s,
					%s,
					%s,
					%s,
					%s`, pkCol(p), refCol(p, "thread_id", "threads"),
					refCol(p, "author_id", "users"), textCol(p, "body"),
					boolCol(p, "hidden", false), timestampCol(p, "created_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropTable(ctx, a, "posts"); err != nil {
					return err
				}
				return dropTable(ctx, a, "threads")
			},
		},
		{
			ID: "0009_forum_indexes",
			Notes: "Hot-path indexes for thread listings. Runs outside a " +
				"transaction; every statement is guarded so an interrupted run " +
				"picks up where it stopped.",
			TxMode: migrate.TxNone,
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				if err := createIndex(ctx, a, "threads", "idx_threads_course", false, "course_id"); err != nil {
					return err
				}
				if err := createIndex(ctx, a, "posts", "idx_posts_thread", false, "thread_id"); err != nil {
					return err
				}
				return createIndex(ctx, a, "posts", "idx_posts_author", false, "author_id")
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropIndex(ctx, a, "posts", "idx_posts_author"); err != nil {
					return err
				}
				if err := dropIndex(ctx, a, "posts", "idx_posts_thread"); err != nil {
					return err
				}
				return dropIndex(ctx, a, "threads", "idx_threads_course")
			},
		},
	}
}
