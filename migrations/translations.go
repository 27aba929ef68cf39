package migrations

import (
	"context"
	"fmt"

	"github.com/eoty-platform/eoty-db/dbx"
	"github.com/eoty-platform/eoty-db/migrate"
)

func translationUnits() []*migrate.Unit {
	return []*migrate.Unit{
		{
			ID: "0013_translations",
			Notes: "Multilingual content: one row per (record, locale, field). " +
				"Backfills English rows for existing course titles.",
			// The backfill commits together with the table creation, so the
			// whole unit stays in one transaction.
			Apply: func(ctx context.Context, a dbx.Adapter) error {
				p := a.Provider()
				if err := createTable(ctx, a, "translations", fmt.Sprintf(`
					%s,
					record_type VARCHAR(64) NOT NULL,
					record_id BIGINT NOT NULL,
					locale VARCHAR(8) NOT NULL,
					field VARCHAR(64) NOT NULL,
					%s`, pkCol(p), textCol(p, "value"))); err != nil {
					return err
				}
				if err := createIndex(ctx, a, "translations", "idx_translations_record", true,
					"record_type", "record_id", "locale", "field"); err != nil {
					return err
				}
				// Idempotent backfill: only courses with no English title row.
				_, err := a.Exec(ctx, `
					INSERT INTO translations (record_type, record_id, locale, field, value)
					SELECT 'course', c.id, 'en', 'title', c.title
					FROM courses c
					WHERE NOT EXISTS (
						SELECT 1 FROM translations t
						WHERE t.record_type = 'course' AND t.record_id = c.id
						  AND t.locale = 'en' AND t.field = 'title'
					)`)
				return err
			},
			Revert: func(ctx context.Context, a dbx.Adapter) error {
				if err := dropIndex(ctx, a, "translations", "idx_translations_record"); err != nil {
					return err
				}
				return dropTable(ctx, a, "translations")
			},
		},
	}
}
