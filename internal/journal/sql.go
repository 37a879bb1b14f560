package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/phasedmigrate/internal/db"
	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

// ErrEntryNotFound is returned by repair operations for unknown names.
var ErrEntryNotFound = errors.New("journal entry not found")

// SQL keeps migrations and stored code definitions in one table of the
// target database.
type SQL struct {
	DB        *sqlx.DB
	Dialect   db.Dialect
	Table     string
	AppliedBy string
	// RunID tags every row written by this process.
	RunID string

	now func() time.Time
}

type journalRow struct {
	MigrationNumber int    `db:"migration_number"`
	Name            string `db:"name"`
	Complete        bool   `db:"complete"`
	Fingerprint     string `db:"fingerprint"`
}

type entry struct {
	number      int
	name        string
	repeatable  bool
	complete    bool
	fingerprint string
}

// NewSQL returns a journal stored in table. An empty appliedBy falls back to
// the current OS user.
func NewSQL(database *sqlx.DB, dialect db.Dialect, table, appliedBy string) *SQL {
	if strings.TrimSpace(appliedBy) == "" {
		appliedBy = defaultAppliedBy()
	}
	return &SQL{
		DB:        database,
		Dialect:   dialect,
		Table:     table,
		AppliedBy: appliedBy,
		RunID:     uuid.NewString(),
		now:       time.Now,
	}
}

func defaultAppliedBy() string {
	u, err := user.Current()
	if err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func (j *SQL) CreateJournal(ctx context.Context) error {
	return db.EnsureJournalTable(ctx, j.DB, j.Dialect, j.Table)
}

func (j *SQL) SetBaseline(ctx context.Context, migrations []migrator.Migration) ([]migrator.DeployedMigration, error) {
	if err := j.CreateJournal(ctx); err != nil {
		return nil, err
	}
	tx, err := j.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, m := range migrations {
		e := entry{number: m.Number, name: m.Name, complete: true, fingerprint: m.Fingerprint}
		if err := j.upsert(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("baseline %s: %w", m, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return j.DeployedMigrations(ctx)
}

func (j *SQL) RecordStartMigration(ctx context.Context, m migrator.Migration) error {
	return j.upsert(ctx, j.DB, entry{number: m.Number, name: m.Name, fingerprint: m.Fingerprint})
}

func (j *SQL) RecordCompleteMigration(ctx context.Context, m migrator.Migration) error {
	res, err := j.DB.ExecContext(ctx, j.DB.Rebind(fmt.Sprintf(
		`UPDATE %s SET complete = ?, completed_at = ?, run_id = ? WHERE LOWER(name) = LOWER(?) AND repeatable = ?`, j.Table)),
		true, j.now().UTC(), j.RunID, m.Name, false)
	if err != nil {
		return err
	}
	return expectRow(res, m.Name)
}

func (j *SQL) RecordStoredCode(ctx context.Context, d migrator.StoredCodeDefinition, lastMigrationNumber int) error {
	return j.upsert(ctx, j.DB, entry{
		number: lastMigrationNumber, name: d.Name, repeatable: true, complete: true, fingerprint: d.Fingerprint,
	})
}

func (j *SQL) DeployedMigrations(ctx context.Context) ([]migrator.DeployedMigration, error) {
	rows, err := j.selectRows(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]migrator.DeployedMigration, 0, len(rows))
	for _, r := range rows {
		out = append(out, migrator.DeployedMigration{
			Number: r.MigrationNumber, Name: r.Name, Fingerprint: r.Fingerprint, Complete: r.Complete,
		})
	}
	return out, nil
}

func (j *SQL) DeployedStoredCode(ctx context.Context) ([]migrator.DeployedStoredCode, error) {
	rows, err := j.selectRows(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]migrator.DeployedStoredCode, 0, len(rows))
	for _, r := range rows {
		out = append(out, migrator.DeployedStoredCode{Name: r.Name, Fingerprint: r.Fingerprint})
	}
	return out, nil
}

// MarkComplete marks a migration complete after an operator repaired the
// store by hand.
func (j *SQL) MarkComplete(ctx context.Context, name string) error {
	res, err := j.DB.ExecContext(ctx, j.DB.Rebind(fmt.Sprintf(
		`UPDATE %s SET complete = ?, completed_at = ?, applied_by = ? WHERE LOWER(name) = LOWER(?) AND repeatable = ?`, j.Table)),
		true, j.now().UTC(), j.AppliedBy, name, false)
	if err != nil {
		return err
	}
	return expectRow(res, name)
}

// Forget deletes an entry so the next deployment runs it again.
func (j *SQL) Forget(ctx context.Context, name string) error {
	res, err := j.DB.ExecContext(ctx, j.DB.Rebind(fmt.Sprintf(
		`DELETE FROM %s WHERE LOWER(name) = LOWER(?)`, j.Table)), name)
	if err != nil {
		return err
	}
	return expectRow(res, name)
}

func (j *SQL) selectRows(ctx context.Context, repeatable bool) ([]journalRow, error) {
	ok, err := db.TableExists(ctx, j.DB, j.Dialect, j.Table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: table %s", migrator.ErrJournalNotCreated, j.Table)
	}
	var rows []journalRow
	err = j.DB.SelectContext(ctx, &rows, j.DB.Rebind(fmt.Sprintf(
		`SELECT migration_number, name, complete, fingerprint FROM %s WHERE repeatable = ? ORDER BY migration_number, name`, j.Table)),
		repeatable)
	return rows, err
}

// upsert updates the row matching e.name case-insensitively, inserting it
// when none exists.
func (j *SQL) upsert(ctx context.Context, ex sqlx.ExtContext, e entry) error {
	var completedAt sql.NullTime
	if e.complete {
		completedAt = sql.NullTime{Time: j.now().UTC(), Valid: true}
	}
	res, err := ex.ExecContext(ctx, ex.Rebind(fmt.Sprintf(`
UPDATE %s SET migration_number = ?, name = ?, repeatable = ?, complete = ?, completed_at = ?, fingerprint = ?, applied_by = ?, run_id = ?
WHERE LOWER(name) = LOWER(?)`, j.Table)),
		e.number, e.name, e.repeatable, e.complete, completedAt, e.fingerprint, j.AppliedBy, j.RunID, e.name)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n > 0 {
		return nil
	}
	_, err = ex.ExecContext(ctx, ex.Rebind(fmt.Sprintf(`
INSERT INTO %s (migration_number, name, repeatable, complete, completed_at, fingerprint, applied_by, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, j.Table)),
		e.number, e.name, e.repeatable, e.complete, completedAt, e.fingerprint, j.AppliedBy, j.RunID)
	return err
}

func expectRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return nil
}
