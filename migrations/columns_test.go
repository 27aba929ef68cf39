package migrations

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eoty-platform/eoty-db/dbx"
)

// "key" and "read" are reserved words on MySQL; the corpus uses both as
// column names, so every rendered definition must quote its identifier.
func TestColumnRenderersQuoteReservedNames(t *testing.T) {
	require.Equal(t, "`key` VARCHAR(64) NOT NULL UNIQUE", keyCol(dbx.MySQL))
	require.Equal(t, "`read` BOOLEAN NOT NULL DEFAULT FALSE", boolCol(dbx.MySQL, "read", false))
	require.Equal(t, `"key" VARCHAR(64) NOT NULL UNIQUE`, keyCol(dbx.Postgres))
	require.Equal(t, `"read" INTEGER NOT NULL DEFAULT 0`, boolCol(dbx.SQLite, "read", false))
}

func TestColumnRenderersQuoteEveryIdentifier(t *testing.T) {
	require.Equal(t, "`id` BIGINT AUTO_INCREMENT PRIMARY KEY", pkCol(dbx.MySQL))
	require.Equal(t, `"id" BIGSERIAL PRIMARY KEY`, pkCol(dbx.Postgres))
	require.Equal(t, `"id" INTEGER PRIMARY KEY AUTOINCREMENT`, pkCol(dbx.SQLite))

	require.Equal(t, "`summary` TEXT", textCol(dbx.MySQL, "summary"))
	require.Equal(t,
		"`user_id` BIGINT NOT NULL REFERENCES `users` (`id`)",
		refCol(dbx.MySQL, "user_id", "users"))
	require.Equal(t,
		`"created_at" TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP`,
		timestampCol(dbx.Postgres, "created_at"))
	require.Equal(t,
		`"created_at" DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP`,
		timestampCol(dbx.SQLite, "created_at"))
}
