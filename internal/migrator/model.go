package migrator

import (
	"context"
	"errors"
	"fmt"
)

// Reporter receives nested progress output while a deployment runs.
// EndBlock must tolerate a name that is not currently open.
type Reporter interface {
	Report(message string)
	BeginBlock(name string)
	EndBlock(name string)
}

// Action performs the effect of a migration or stored code definition
// against the target store.
type Action interface {
	Run(ctx context.Context, r Reporter) error
}

// ActionFunc adapts an ordinary function to an Action.
type ActionFunc func(ctx context.Context, r Reporter) error

func (f ActionFunc) Run(ctx context.Context, r Reporter) error { return f(ctx, r) }

var errNoAction = errors.New("no action bound")

// Migration is one numbered unit of schema or data change.
// Values are treated as immutable once a source has produced them.
type Migration struct {
	Number      int
	Name        string
	Fingerprint string
	// Online migrations run while the application stays live and must be
	// resumable after an interruption.
	Online bool
	Action Action
}

func (m Migration) Run(ctx context.Context, r Reporter) error {
	if m.Action == nil {
		return fmt.Errorf("migration (%d) %s: %w", m.Number, m.Name, errNoAction)
	}
	return m.Action.Run(ctx, r)
}

func (m Migration) String() string { return fmt.Sprintf("(%d) %s", m.Number, m.Name) }

// Deployed returns the journal view of m.
func (m Migration) Deployed(complete bool) DeployedMigration {
	return DeployedMigration{Number: m.Number, Name: m.Name, Fingerprint: m.Fingerprint, Complete: complete}
}

// StoredCodeDefinition is re-appliable code (views, procedures, functions)
// tracked by fingerprint rather than by sequence.
type StoredCodeDefinition struct {
	Name            string
	Fingerprint     string
	DependencyLevel int
	Action          Action
}

func (d StoredCodeDefinition) Apply(ctx context.Context, r Reporter) error {
	if d.Action == nil {
		return fmt.Errorf("stored code %s: %w", d.Name, errNoAction)
	}
	return d.Action.Run(ctx, r)
}

// DeployedMigration is a journal entry for a migration.
type DeployedMigration struct {
	Number      int
	Name        string
	Fingerprint string
	Complete    bool
}

func (d DeployedMigration) String() string { return fmt.Sprintf("(%d) %s", d.Number, d.Name) }

// DeployedStoredCode is a journal entry for a stored code definition.
type DeployedStoredCode struct {
	Name        string
	Fingerprint string
}
