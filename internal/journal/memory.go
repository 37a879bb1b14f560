package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

// Memory is an in-process journal. It is used by tests and by dry runs
// that should not touch the target store.
type Memory struct {
	mu         sync.RWMutex
	created    bool
	migrations map[string]migrator.DeployedMigration // lower-cased name -> entry
	storedCode map[string]storedCodeEntry            // lower-cased name -> entry
}

type storedCodeEntry struct {
	migrator.DeployedStoredCode
	LastMigrationNumber int
}

// NewMemory returns an empty journal that has not been created yet.
func NewMemory() *Memory {
	return &Memory{
		migrations: make(map[string]migrator.DeployedMigration),
		storedCode: make(map[string]storedCodeEntry),
	}
}

// Seed replaces the journal contents and marks it created.
func (j *Memory) Seed(migrations []migrator.DeployedMigration, code []migrator.DeployedStoredCode) *Memory {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = true
	j.migrations = make(map[string]migrator.DeployedMigration, len(migrations))
	for _, m := range migrations {
		j.migrations[strings.ToLower(m.Name)] = m
	}
	j.storedCode = make(map[string]storedCodeEntry, len(code))
	for _, c := range code {
		j.storedCode[strings.ToLower(c.Name)] = storedCodeEntry{DeployedStoredCode: c}
	}
	return j
}

func (j *Memory) Created() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.created
}

func (j *Memory) CreateJournal(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.created = true
	return nil
}

func (j *Memory) SetBaseline(ctx context.Context, migrations []migrator.Migration) ([]migrator.DeployedMigration, error) {
	j.mu.Lock()
	j.created = true
	for _, m := range migrations {
		j.migrations[strings.ToLower(m.Name)] = m.Deployed(true)
	}
	j.mu.Unlock()
	return j.DeployedMigrations(ctx)
}

func (j *Memory) RecordStartMigration(ctx context.Context, m migrator.Migration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.migrations[strings.ToLower(m.Name)] = m.Deployed(false)
	return nil
}

func (j *Memory) RecordCompleteMigration(ctx context.Context, m migrator.Migration) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.migrations[strings.ToLower(m.Name)] = m.Deployed(true)
	return nil
}

func (j *Memory) RecordStoredCode(ctx context.Context, d migrator.StoredCodeDefinition, lastMigrationNumber int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.storedCode[strings.ToLower(d.Name)] = storedCodeEntry{
		DeployedStoredCode:  migrator.DeployedStoredCode{Name: d.Name, Fingerprint: d.Fingerprint},
		LastMigrationNumber: lastMigrationNumber,
	}
	return nil
}

func (j *Memory) DeployedMigrations(ctx context.Context) ([]migrator.DeployedMigration, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.created {
		return nil, migrator.ErrJournalNotCreated
	}
	out := make([]migrator.DeployedMigration, 0, len(j.migrations))
	for _, m := range j.migrations {
		out = append(out, m)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Number < out[b].Number })
	return out, nil
}

func (j *Memory) DeployedStoredCode(ctx context.Context) ([]migrator.DeployedStoredCode, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.created {
		return nil, migrator.ErrJournalNotCreated
	}
	out := make([]migrator.DeployedStoredCode, 0, len(j.storedCode))
	for _, c := range j.storedCode {
		out = append(out, c.DeployedStoredCode)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

// StoredCodeMigrationNumber returns the migration number a stored code
// definition was last applied against.
func (j *Memory) StoredCodeMigrationNumber(name string) (int, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	e, ok := j.storedCode[strings.ToLower(name)]
	return e.LastMigrationNumber, ok
}

// MarkComplete marks a deployed migration complete.
func (j *Memory) MarkComplete(ctx context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, ok := j.migrations[strings.ToLower(name)]
	if !ok {
		return ErrEntryNotFound
	}
	m.Complete = true
	j.migrations[strings.ToLower(name)] = m
	return nil
}

// Forget deletes a journal entry so it is planned again.
func (j *Memory) Forget(ctx context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	k := strings.ToLower(name)
	_, isMigration := j.migrations[k]
	_, isCode := j.storedCode[k]
	if !isMigration && !isCode {
		return ErrEntryNotFound
	}
	delete(j.migrations, k)
	delete(j.storedCode, k)
	return nil
}
