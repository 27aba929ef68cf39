package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func quizUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID:    "0007_quizzes",
			Notes: "Quizzes with questions, answer options, and attempts.",
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "quizzes", fmt.Sprintf(`
					%s,
					%s,
					title VARCHAR(255) NOT NULL,
					pass_score INTEGER NOT NULL DEFAULT 70`,
					pkCol(p), refCol(p, "lesson_id", "lessons"))); err != nil {
					return err
				}
				if err := createTable(ctx, a, "questions", fmt.Sprintf(`
					%s,
					%s,
					position INTEGER NOT NULL,
					%s`, pkCol(p), refCol(p, "quiz_id", "quizzes"),
					textCol(p, "prompt"))); err != nil {
					return err
				}
				if err := createTable(ctx, a, "answers", fmt.Sprintf(`
					%s,
					%s,
					%s,
					%s`, pkCol(p), refCol(p, "question_id", "questions"),
					textCol(p, "body"), boolCol(p, "correct", false))); err != nil {
					return err
				}
				return createTable(ctx, a, "quiz_attempts", fmt.Sprintf(`
					%s,
					%s,
					%s,
					score INTEGER NOT NULL,
					%s`, pkCol(p), refCol(p, "quiz_id", "quizzes"),
					refCol(p, "user_id", "users"), timestampCol(p, "submitted_at")))
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				for _, t := range []string{"quiz_attempts", "answers", "questions", "quizzes"} {
					if err := dropTable(ctx, a, t); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
