package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func courseUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0005_courses",
			Notes: "Courses and their chapter structure.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "courses", fmt.Sprintf(`
					%s,
					slug VARCHAR(160) NOT NULL UNIQUE,
					title VARCHAR(255) NOT NULL,
					%s,
					%s,
					%s`, pkCol(p), textCol(p, "description"),
					boolCol(p, "published", false),
					timestampCol(p, "created_at"))); err != nil {
					return err
				}
				return createTable(ctx, a, "chapters", fmt.Sprintf(`
					%s,
					%s,
					position INTEGER NOT NULL,
					title VARCHAR(255) NOT NULL`,
					pkCol(p), refCol(p, "course_id", "courses")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropTable(ctx, a, "chapters"); err != nil {
					return err
				}
				return dropTable(ctx, a, "courses")
			},
		},
		{
			ID:    "0006_lessons",
			Notes: "Lessons within chapters and their video assets.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "lessons", fmt.Sprintf(`
					%s,
					%s,
					position INTEGER NOT NULL,
					title VARCHAR(255) NOT NULL,
					%s,
					%s`, pkCol(p), refCol(p, "chapter_id", "chapters"),
					textCol(p, "body"), boolCol(p, "free_preview", false))); err != nil {
					return err
				}
				return createTable(ctx, a, "videos", fmt.Sprintf(`
					%s,
					%s,
					url VARCHAR(512) NOT NULL,
					duration_seconds INTEGER,
					%s`, pkCol(p), refCol(p, "lesson_id", "lessons"),
					timestampCol(p, "created_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropTable(ctx, a, "videos"); err != nil {
					return err
				}
				return dropTable(ctx, a, "lessons")
			},
		},
	}
}
