package auth

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateLogsThroughLogger(t *testing.T) {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	logger := &captureLogger{}
	require.NoError(t, Migrate(context.Background(), db, WithLogger(logger)))

	infos := logger.byLevel("info")
	require.NotEmpty(t, infos)

	var applied bool
	for _, call := range infos {
		if strings.Contains(call.message, "00001_principals.sql") {
			applied = true
		}
	}
	assert.True(t, applied, "expected the applied migration to be logged")
}

func TestGooseLoggerFatalfLogsError(t *testing.T) {
	logger := &captureLogger{}
	gooseLogger{logger: logger}.Fatalf("goose: %s\n", "broken")

	errs := logger.byLevel("error")
	require.Len(t, errs, 1)
	assert.Equal(t, "goose: broken", errs[0].message)
}
