package db

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		driver, dsn string
		want        Target
	}{
		{"", "postgres://u:p@localhost/app", Target{Driver: "postgres", DSN: "postgres://u:p@localhost/app", Dialect: Postgres}},
		{"", "mysql://u:p@tcp(localhost:3306)/app", Target{Driver: "mysql", DSN: "u:p@tcp(localhost:3306)/app", Dialect: MySQL}},
		{"", "u:p@tcp(db:3306)/app", Target{Driver: "mysql", DSN: "u:p@tcp(db:3306)/app", Dialect: MySQL}},
		{"", "sqlite://app.db", Target{Driver: "sqlite", DSN: "app.db", Dialect: SQLite}},
		{"", "file:app.db?cache=shared", Target{Driver: "sqlite", DSN: "file:app.db?cache=shared", Dialect: SQLite}},
		{"", "libsql://app-org.turso.io?authToken=x", Target{Driver: "libsql", DSN: "libsql://app-org.turso.io?authToken=x", Dialect: SQLite}},
		{"turso", "http://127.0.0.1:8080", Target{Driver: "libsql", DSN: "http://127.0.0.1:8080", Dialect: SQLite}},
		{"PostgreSQL", "host=localhost dbname=app", Target{Driver: "postgres", DSN: "host=localhost dbname=app", Dialect: Postgres}},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.driver, tt.dsn)
		require.NoError(t, err, tt.dsn)
		assert.Equal(t, tt.want, got, tt.dsn)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("oracle", "x")
	assert.True(t, errors.Is(err, ErrUnknownDriver))

	_, err = Resolve("", "something-opaque")
	assert.ErrorIs(t, err, ErrUnknownDriver)
}

func TestMySQLDSNOptions(t *testing.T) {
	assert.Equal(t, "u@tcp(h)/db?parseTime=true&multiStatements=true&clientFoundRows=true", mysqlDSN("u@tcp(h)/db"))
	assert.Equal(t, "u@tcp(h)/db?parseTime=false&multiStatements=true&clientFoundRows=true", mysqlDSN("u@tcp(h)/db?parseTime=false"))
}

func TestValidTableName(t *testing.T) {
	for _, ok := range []string{"schema_journal", "public.schema_journal", "_j1"} {
		assert.NoError(t, ValidTableName(ok), ok)
	}
	for _, bad := range []string{"", "1journal", "j; DROP TABLE users", "a.b.c", "j-1"} {
		assert.ErrorIs(t, ValidTableName(bad), ErrBadTableName, bad)
	}
}

func TestJournalDDL(t *testing.T) {
	for _, d := range []Dialect{MySQL, Postgres, SQLite} {
		ddl := JournalDDL(d, "schema_journal")
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS schema_journal")
		for _, col := range []string{"migration_number", "name", "repeatable", "complete", "completed_at", "fingerprint", "applied_by", "run_id"} {
			assert.Contains(t, ddl, col, string(d))
		}
	}
	assert.True(t, strings.Contains(JournalDDL(MySQL, "j"), "ENGINE=InnoDB"))
}

func TestEnsureJournalTableSQLite(t *testing.T) {
	ctx := context.Background()
	database, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer database.Close()
	database.SetMaxOpenConns(1)

	ok, err := TableExists(ctx, database, SQLite, "schema_journal")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, EnsureJournalTable(ctx, database, SQLite, "schema_journal"))
	ok, err = TableExists(ctx, database, SQLite, "schema_journal")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, EnsureJournalTable(ctx, database, SQLite, "bad name"), ErrBadTableName)
}

func TestTableExistsQualifiedSQLite(t *testing.T) {
	ctx := context.Background()
	database, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer database.Close()
	database.SetMaxOpenConns(1)

	ok, err := TableExists(ctx, database, SQLite, "main.qualified_journal")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, EnsureJournalTable(ctx, database, SQLite, "main.qualified_journal"))
	ok, err = TableExists(ctx, database, SQLite, "main.qualified_journal")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTableExistsQualifiedMySQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	database := sqlx.NewDb(mockDB, "mysql")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?")).
		WithArgs("ops", "schema_journal").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE table_schema = DATABASE() AND table_name = ?")).
		WithArgs("schema_journal").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := TableExists(context.Background(), database, MySQL, "ops.schema_journal")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = TableExists(context.Background(), database, MySQL, "schema_journal")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
