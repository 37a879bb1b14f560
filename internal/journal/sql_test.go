package journal

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/phasedmigrate/internal/db"
	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

func openSQLite(t *testing.T) *SQL {
	t.Helper()
	database, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	database.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = database.Close() })
	return NewSQL(database, db.SQLite, "schema_journal", "tester")
}

func TestSQLJournalNotCreated(t *testing.T) {
	j := openSQLite(t)

	_, err := j.DeployedMigrations(context.Background())

	assert.ErrorIs(t, err, migrator.ErrJournalNotCreated)
}

func TestSQLJournalLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openSQLite(t)
	require.NoError(t, j.CreateJournal(ctx))
	require.NoError(t, j.CreateJournal(ctx))

	initial := migrator.Migration{Number: 1, Name: "init", Fingerprint: "a"}
	backfill := migrator.Migration{Number: 2, Name: "backfill", Fingerprint: "b", Online: true}

	require.NoError(t, j.RecordStartMigration(ctx, initial))
	require.NoError(t, j.RecordCompleteMigration(ctx, initial))
	require.NoError(t, j.RecordStartMigration(ctx, backfill))
	// a resumed online migration is started again with a new fingerprint
	backfill.Fingerprint = "b2"
	require.NoError(t, j.RecordStartMigration(ctx, backfill))
	require.NoError(t, j.RecordStoredCode(ctx, migrator.StoredCodeDefinition{Name: "v_users", Fingerprint: "h1"}, 1))
	require.NoError(t, j.RecordStoredCode(ctx, migrator.StoredCodeDefinition{Name: "V_USERS", Fingerprint: "h2"}, 1))

	got, err := j.DeployedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrator.DeployedMigration{
		{Number: 1, Name: "init", Fingerprint: "a", Complete: true},
		{Number: 2, Name: "backfill", Fingerprint: "b2", Complete: false},
	}, got)

	code, err := j.DeployedStoredCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrator.DeployedStoredCode{{Name: "V_USERS", Fingerprint: "h2"}}, code)

	require.NoError(t, j.MarkComplete(ctx, "BACKFILL"))
	got, err = j.DeployedMigrations(ctx)
	require.NoError(t, err)
	assert.True(t, got[1].Complete)

	require.NoError(t, j.Forget(ctx, "v_users"))
	code, err = j.DeployedStoredCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, code)
	assert.ErrorIs(t, j.Forget(ctx, "v_users"), ErrEntryNotFound)
}

func TestSQLJournalQualifiedTable(t *testing.T) {
	ctx := context.Background()
	j := openSQLite(t)
	j.Table = "main.schema_journal"
	require.NoError(t, j.CreateJournal(ctx))

	m := migrator.Migration{Number: 1, Name: "init", Fingerprint: "a"}
	require.NoError(t, j.RecordStartMigration(ctx, m))
	require.NoError(t, j.RecordCompleteMigration(ctx, m))

	got, err := j.DeployedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrator.DeployedMigration{{Number: 1, Name: "init", Fingerprint: "a", Complete: true}}, got)
}

func TestSQLJournalSetBaseline(t *testing.T) {
	ctx := context.Background()
	j := openSQLite(t)

	got, err := j.SetBaseline(ctx, []migrator.Migration{
		{Number: 1, Name: "init", Fingerprint: "a"},
		{Number: 2, Name: "users", Fingerprint: "b"},
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Complete && got[1].Complete)
	assert.Equal(t, "users", got[1].Name)
}

func TestSQLJournalCompleteUnknown(t *testing.T) {
	ctx := context.Background()
	j := openSQLite(t)
	require.NoError(t, j.CreateJournal(ctx))

	err := j.RecordCompleteMigration(ctx, migrator.Migration{Number: 9, Name: "ghost"})

	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestSQLJournalMySQLStatements(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	j := NewSQL(sqlx.NewDb(mockDB, "mysql"), db.MySQL, "schema_journal", "ci")
	j.RunID = "run-1"
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }
	m := migrator.Migration{Number: 3, Name: "orders", Fingerprint: "f"}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE schema_journal SET migration_number = ?")).
		WithArgs(3, "orders", false, false, sqlmock.AnyArg(), "f", "ci", "run-1", "orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_journal (migration_number, name, repeatable, complete, completed_at, fingerprint, applied_by, run_id)")).
		WithArgs(3, "orders", false, false, sqlmock.AnyArg(), "f", "ci", "run-1").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE schema_journal SET complete = ?, completed_at = ?, run_id = ? WHERE LOWER(name) = LOWER(?) AND repeatable = ?")).
		WithArgs(true, fixed, "run-1", "orders", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, j.RecordStartMigration(context.Background(), m))
	require.NoError(t, j.RecordCompleteMigration(context.Background(), m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLJournalPostgresPlaceholders(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	j := NewSQL(sqlx.NewDb(mockDB, "postgres"), db.Postgres, "public.schema_journal", "ci")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (SELECT to_regclass($1) AS t) r WHERE r.t IS NOT NULL")).
		WithArgs("public.schema_journal").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT migration_number, name, complete, fingerprint FROM public.schema_journal WHERE repeatable = $1")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"migration_number", "name", "complete", "fingerprint"}).
			AddRow(4, "v_orders", true, "h"))

	code, err := j.DeployedStoredCode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []migrator.DeployedStoredCode{{Name: "v_orders", Fingerprint: "h"}}, code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
