package migrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrBaselineNotFound is returned by EnsureBaseline when no available
// migration carries the requested name.
var ErrBaselineNotFound = errors.New("baseline migration not found")

const (
	offlineBlock    = "Running offline migration scripts..."
	onlineBlock     = "Running online migration scripts..."
	storedCodeBlock = "Running stored code definitions..."
)

// Migrator plans and applies one deployment against one journal. The plan
// is computed once and cached for the lifetime of the instance, so create a
// new Migrator for every deployment attempt.
type Migrator struct {
	journal  Journal
	source   Source
	reporter Reporter

	includeOnlineDuringOffline bool

	plan           *DeploymentPlan
	deployed       []DeployedMigration
	deployedLoaded bool
	available      []Migration
	offlineDone    bool
}

// New returns a Migrator. With includeOnlineDuringOffline every pending
// migration is planned into the offline phase regardless of its online flag.
func New(j Journal, src Source, r Reporter, includeOnlineDuringOffline bool) *Migrator {
	if r == nil {
		r = nopReporter{}
	}
	return &Migrator{
		journal:                    j,
		source:                     src,
		reporter:                   r,
		includeOnlineDuringOffline: includeOnlineDuringOffline,
	}
}

// EnsureJournal asks the journal to prepare its storage if needed.
func (m *Migrator) EnsureJournal(ctx context.Context) error {
	return m.journal.CreateJournal(ctx)
}

// EnsureBaseline adopts a store whose history predates the journal: when
// nothing is deployed yet, every available migration up to and including
// the one named baseline is recorded as complete without running it.
// A journal that already has entries is left untouched; whether it agrees
// with the catalog is checked by Plan. A name that matches no available
// migration returns ErrBaselineNotFound instead of baselining the whole
// catalog.
func (m *Migrator) EnsureBaseline(ctx context.Context, baseline string) error {
	if err := m.journal.CreateJournal(ctx); err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	deployed, err := m.deployedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(deployed) > 0 {
		return nil
	}
	available, err := m.availableMigrations(ctx)
	if err != nil {
		return err
	}
	idx := -1
	for i, a := range available {
		if strings.EqualFold(a.Name, baseline) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrBaselineNotFound, baseline)
	}
	seeded, err := m.journal.SetBaseline(ctx, available[:idx+1])
	if err != nil {
		return fmt.Errorf("set baseline: %w", err)
	}
	m.reporter.Report(fmt.Sprintf("Baselined %d migration(s) through %s.", len(seeded), available[idx]))
	m.deployed = seeded
	m.plan = nil
	return nil
}

// Plan determines whether the target store is compatible with the catalog
// and, if so, what needs to run. The result is cached. The returned error
// only reports failures to read the journal or the source; compatibility
// problems are carried on the plan itself.
func (m *Migrator) Plan(ctx context.Context) (*DeploymentPlan, error) {
	if m.plan != nil {
		return m.plan, nil
	}
	deployed, err := m.deployedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	available, err := m.availableMigrations(ctx)
	if err != nil {
		return nil, err
	}
	deployedCode, err := m.journal.DeployedStoredCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("read deployed stored code: %w", err)
	}
	availableCode, err := m.source.StoredCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("gather stored code: %w", err)
	}
	m.plan = BuildPlan(deployed, available, deployedCode, availableCode, m.includeOnlineDuringOffline)
	return m.plan, nil
}

// DeployOffline applies the planned offline migrations followed by the
// changed stored code definitions. It stops at the first failure; the
// journal then shows the failing migration as started but incomplete.
func (m *Migrator) DeployOffline(ctx context.Context) error {
	plan, err := m.Plan(ctx)
	if err != nil {
		return err
	}
	if plan.OfflineErr != nil {
		return plan.OfflineErr
	}

	last := plan.LastCompletedMigrationNumber
	if plan.HasOfflineMigrations() {
		m.reporter.BeginBlock(offlineBlock)
		for _, mig := range plan.Offline {
			if err := m.runMigration(ctx, mig); err != nil {
				m.reporter.EndBlock(offlineBlock)
				return err
			}
			last = mig.Number
		}
		m.reporter.EndBlock(offlineBlock)
	} else {
		m.reporter.Report("No offline migrations to run.")
	}

	if plan.HasStoredCodeChanges() {
		m.reporter.BeginBlock(storedCodeBlock)
		for _, def := range plan.StoredCode {
			if err := m.applyStoredCode(ctx, def, last); err != nil {
				m.reporter.EndBlock(storedCodeBlock)
				return err
			}
		}
		m.reporter.EndBlock(storedCodeBlock)
	} else {
		m.reporter.Report("No stored code definitions to update.")
	}

	m.offlineDone = true
	return nil
}

// DeployOnline applies the planned online migrations. Stored code is never
// touched here. A backlog of offline migrations blocks this phase unless the
// same Migrator has already deployed that backlog with DeployOffline.
func (m *Migrator) DeployOnline(ctx context.Context) error {
	plan, err := m.Plan(ctx)
	if err != nil {
		return err
	}
	if plan.OnlineErr != nil && !(m.offlineDone && errors.Is(plan.OnlineErr, ErrOfflineBacklog)) {
		return plan.OnlineErr
	}

	if !plan.HasOnlineMigrations() {
		m.reporter.Report("No online migrations to run.")
		return nil
	}
	m.reporter.BeginBlock(onlineBlock)
	defer m.reporter.EndBlock(onlineBlock)
	for _, mig := range plan.Online {
		if err := m.runMigration(ctx, mig); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) runMigration(ctx context.Context, mig Migration) error {
	m.reporter.Report(fmt.Sprintf("Running %s ...", mig.Name))
	if err := m.journal.RecordStartMigration(ctx, mig); err != nil {
		return fmt.Errorf("record start of migration %s: %w", mig, err)
	}
	if err := mig.Run(ctx, m.reporter); err != nil {
		return fmt.Errorf("migration %s failed: %w", mig, err)
	}
	if err := m.journal.RecordCompleteMigration(ctx, mig); err != nil {
		return fmt.Errorf("record completion of migration %s: %w", mig, err)
	}
	m.reporter.Report("Done.")
	return nil
}

func (m *Migrator) applyStoredCode(ctx context.Context, def StoredCodeDefinition, lastMigration int) error {
	m.reporter.Report(fmt.Sprintf("Running %s ...", def.Name))
	if err := def.Apply(ctx, m.reporter); err != nil {
		return fmt.Errorf("stored code %s failed: %w", def.Name, err)
	}
	if err := m.journal.RecordStoredCode(ctx, def, lastMigration); err != nil {
		return fmt.Errorf("record stored code %s: %w", def.Name, err)
	}
	m.reporter.Report("Done.")
	return nil
}

func (m *Migrator) deployedMigrations(ctx context.Context) ([]DeployedMigration, error) {
	if m.deployedLoaded {
		return m.deployed, nil
	}
	deployed, err := m.journal.DeployedMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("read deployed migrations: %w", err)
	}
	m.deployed, m.deployedLoaded = deployed, true
	return deployed, nil
}

func (m *Migrator) availableMigrations(ctx context.Context) ([]Migration, error) {
	if m.available != nil {
		return m.available, nil
	}
	available, err := m.source.Migrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("gather migrations: %w", err)
	}
	if available == nil {
		available = []Migration{}
	}
	m.available = available
	return available, nil
}

type nopReporter struct{}

func (nopReporter) Report(string)     {}
func (nopReporter) BeginBlock(string) {}
func (nopReporter) EndBlock(string)   {}
