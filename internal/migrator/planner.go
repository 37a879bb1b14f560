package migrator

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of planning failure. A PlanError unwraps to exactly one of these.
var (
	ErrInvalidCatalog     = errors.New("invalid migration catalog")
	ErrIncompatibleBranch = errors.New("incompatible branch")
	ErrIncompleteOffline  = errors.New("incomplete prior offline migration")
	ErrOfflineBacklog     = errors.New("offline migrations pending")
)

// PlanError explains why a deployment phase cannot proceed.
type PlanError struct {
	Kind    error
	Message string
}

func (e *PlanError) Error() string { return e.Message }
func (e *PlanError) Unwrap() error { return e.Kind }

func planErr(kind error, format string, args ...any) *PlanError {
	return &PlanError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DeploymentPlan is the decision of which migrations and stored code to run.
// A phase whose error is non-nil must not be executed.
type DeploymentPlan struct {
	OfflineErr error
	OnlineErr  error

	Offline    []Migration
	Online     []Migration
	StoredCode []StoredCodeDefinition

	// LastCompletedMigrationNumber is 0 when nothing has completed.
	LastCompletedMigrationNumber int
}

func (p *DeploymentPlan) HasOfflineMigrations() bool { return len(p.Offline) > 0 }
func (p *DeploymentPlan) HasOnlineMigrations() bool  { return len(p.Online) > 0 }
func (p *DeploymentPlan) HasStoredCodeChanges() bool { return len(p.StoredCode) > 0 }

// UpToDate reports whether the plan has nothing to run and no errors.
func (p *DeploymentPlan) UpToDate() bool {
	return p.OfflineErr == nil && p.OnlineErr == nil &&
		!p.HasOfflineMigrations() && !p.HasOnlineMigrations() && !p.HasStoredCodeChanges()
}

// BuildPlan reconciles the journal with the available catalog. It performs
// no I/O. Catalog and history problems are reported on the plan, never as a
// returned error.
func BuildPlan(
	deployed []DeployedMigration,
	available []Migration,
	deployedCode []DeployedStoredCode,
	availableCode []StoredCodeDefinition,
	includeOnlineDuringOffline bool,
) *DeploymentPlan {
	plan := &DeploymentPlan{}
	fail := func(err *PlanError) *DeploymentPlan {
		plan.OfflineErr = err
		plan.OnlineErr = err
		plan.Offline, plan.Online, plan.StoredCode = nil, nil, nil
		return plan
	}

	if err := validateCatalog(available); err != nil {
		return fail(err)
	}
	if err := validateStoredCode(available, availableCode); err != nil {
		return fail(err)
	}

	restartLast := false
	for i, d := range deployed {
		if i == len(available) {
			return fail(planErr(ErrIncompatibleBranch,
				"Cannot migrate due to incompatible branch. Deployed migration %s is not known.", d))
		}
		a := available[i]
		if d.Number != a.Number || !strings.EqualFold(d.Name, a.Name) {
			return fail(planErr(ErrIncompatibleBranch,
				"Cannot migrate due to incompatible branch. Available migration %s was found where deployed migration %s was expected.", a, d))
		}
		if d.Complete {
			plan.LastCompletedMigrationNumber = d.Number
			if d.Fingerprint != a.Fingerprint {
				return fail(planErr(ErrIncompatibleBranch,
					"Cannot migrate due to incompatible branch. Deployed migration %s has been modified.", d))
			}
			continue
		}
		if !a.Online {
			return fail(planErr(ErrIncompleteOffline,
				"Cannot migrate due to incomplete prior offline migration. Deployed migration %s did not complete. "+
					"Restore the database from a backup or manually fix the database and mark the migration complete in the journal, "+
					"or delete it from the journal to have it run the next time.", d))
		}
		if i != len(deployed)-1 {
			return fail(planErr(ErrIncompatibleBranch,
				"Cannot migrate due to incompatible branch. Deployed migration %s did not complete but later migrations were deployed.", d))
		}
		// An interrupted online migration is resumed even if its fingerprint changed.
		restartLast = true
	}

	start := len(deployed)
	if restartLast {
		start--
	}
	remaining := available[start:]

	if includeOnlineDuringOffline {
		plan.Offline = append(plan.Offline, remaining...)
	} else {
		for _, m := range remaining {
			switch {
			case m.Online:
				plan.Online = append(plan.Online, m)
			case len(plan.Online) > 0:
				return fail(planErr(ErrIncompatibleBranch,
					"Cannot migrate due to incompatible branch. Found offline migration %s that follows an online migration.", m))
			default:
				plan.Offline = append(plan.Offline, m)
			}
		}
	}

	plan.StoredCode = diffStoredCode(deployedCode, availableCode)

	if len(plan.Offline) > 0 {
		plan.OnlineErr = planErr(ErrOfflineBacklog,
			"Cannot migrate online due to offline migrations that need to run first: %s.", plan.Offline[0])
	}
	return plan
}

func validateCatalog(available []Migration) *PlanError {
	names := make(map[string]struct{}, len(available))
	for _, m := range available {
		k := strings.ToLower(m.Name)
		if _, dup := names[k]; dup {
			return planErr(ErrInvalidCatalog, "Cannot migrate due to migration names that are not unique: %s.", m.Name)
		}
		names[k] = struct{}{}
	}
	numbers := make(map[int]struct{}, len(available))
	for _, m := range available {
		if _, dup := numbers[m.Number]; dup {
			return planErr(ErrInvalidCatalog, "Cannot migrate due to migration numbers that are not unique: %d.", m.Number)
		}
		numbers[m.Number] = struct{}{}
	}
	for i := 1; i < len(available); i++ {
		if available[i].Number < available[i-1].Number {
			return planErr(ErrInvalidCatalog, "Cannot migrate due to migration numbers that are not in order: %d follows %d.",
				available[i].Number, available[i-1].Number)
		}
	}
	return nil
}

// validateStoredCode rejects definitions that would share a journal entry
// with a migration or with each other; the journal keys both by name.
func validateStoredCode(available []Migration, code []StoredCodeDefinition) *PlanError {
	migrations := make(map[string]Migration, len(available))
	for _, m := range available {
		migrations[strings.ToLower(m.Name)] = m
	}
	seen := make(map[string]struct{}, len(code))
	for _, d := range code {
		k := strings.ToLower(d.Name)
		if m, clash := migrations[k]; clash {
			return planErr(ErrInvalidCatalog, "Cannot migrate due to stored code definition %s sharing its name with migration %s.", d.Name, m)
		}
		if _, dup := seen[k]; dup {
			return planErr(ErrInvalidCatalog, "Cannot migrate due to stored code definition names that are not unique: %s.", d.Name)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// diffStoredCode keeps catalog order and selects every definition that is
// new or whose fingerprint changed.
func diffStoredCode(deployed []DeployedStoredCode, available []StoredCodeDefinition) []StoredCodeDefinition {
	applied := make(map[string]string, len(deployed))
	for _, d := range deployed {
		applied[strings.ToLower(d.Name)] = d.Fingerprint
	}
	var out []StoredCodeDefinition
	for _, a := range available {
		if fp, ok := applied[strings.ToLower(a.Name)]; ok && fp == a.Fingerprint {
			continue
		}
		out = append(out, a)
	}
	return out
}
