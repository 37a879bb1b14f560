package migrator

import (
	"context"
	"errors"
)

// ErrJournalNotCreated is returned when deployed state is read from a
// journal whose storage has not been created yet.
var ErrJournalNotCreated = errors.New("journal has not been created")

// Journal persists what has been deployed to one target store.
type Journal interface {
	// CreateJournal prepares storage. It is a no-op when it already exists.
	CreateJournal(ctx context.Context) error
	// SetBaseline records migrations as already complete without running them.
	SetBaseline(ctx context.Context, migrations []Migration) ([]DeployedMigration, error)
	// RecordStartMigration inserts or updates m as incomplete.
	RecordStartMigration(ctx context.Context, m Migration) error
	// RecordCompleteMigration marks the most recently started migration complete.
	RecordCompleteMigration(ctx context.Context, m Migration) error
	// RecordStoredCode inserts or updates the fingerprint of an applied
	// definition, tagged with the last completed migration number.
	RecordStoredCode(ctx context.Context, d StoredCodeDefinition, lastMigrationNumber int) error
	// DeployedMigrations returns journal entries ordered by migration number.
	DeployedMigrations(ctx context.Context) ([]DeployedMigration, error)
	DeployedStoredCode(ctx context.Context) ([]DeployedStoredCode, error)
}

// Source supplies the ordered catalog of available migrations and stored
// code definitions.
type Source interface {
	// Migrations returns the catalog ascending by migration number.
	Migrations(ctx context.Context) ([]Migration, error)
	// StoredCode returns definitions ascending by dependency level.
	StoredCode(ctx context.Context) ([]StoredCodeDefinition, error)
}
