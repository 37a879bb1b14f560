package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

func TestMemoryNotCreated(t *testing.T) {
	j := NewMemory()

	_, err := j.DeployedMigrations(context.Background())
	assert.ErrorIs(t, err, migrator.ErrJournalNotCreated)
	_, err = j.DeployedStoredCode(context.Background())
	assert.ErrorIs(t, err, migrator.ErrJournalNotCreated)
}

func TestMemoryRecordsInNumberOrder(t *testing.T) {
	ctx := context.Background()
	j := NewMemory()
	require.NoError(t, j.CreateJournal(ctx))

	users := migrator.Migration{Number: 2, Name: "users", Fingerprint: "b"}
	initial := migrator.Migration{Number: 1, Name: "init", Fingerprint: "a"}
	require.NoError(t, j.RecordStartMigration(ctx, users))
	require.NoError(t, j.RecordStartMigration(ctx, initial))
	require.NoError(t, j.RecordCompleteMigration(ctx, initial))

	got, err := j.DeployedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrator.DeployedMigration{
		{Number: 1, Name: "init", Fingerprint: "a", Complete: true},
		{Number: 2, Name: "users", Fingerprint: "b", Complete: false},
	}, got)
}

func TestMemoryRepair(t *testing.T) {
	ctx := context.Background()
	j := NewMemory().Seed(
		[]migrator.DeployedMigration{{Number: 1, Name: "init", Fingerprint: "a"}},
		[]migrator.DeployedStoredCode{{Name: "v_users", Fingerprint: "h"}},
	)

	require.NoError(t, j.MarkComplete(ctx, "INIT"))
	got, err := j.DeployedMigrations(ctx)
	require.NoError(t, err)
	assert.True(t, got[0].Complete)

	require.NoError(t, j.Forget(ctx, "v_users"))
	code, err := j.DeployedStoredCode(ctx)
	require.NoError(t, err)
	assert.Empty(t, code)

	assert.ErrorIs(t, j.MarkComplete(ctx, "missing"), ErrEntryNotFound)
	assert.ErrorIs(t, j.Forget(ctx, "missing"), ErrEntryNotFound)
}
