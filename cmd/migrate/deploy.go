package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mirajehossain/phasedmigrate/internal/journal"
	"github.com/mirajehossain/phasedmigrate/internal/logger"
	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

type phase int

const (
	phaseOffline phase = 1 << iota
	phaseOnline
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the deployment plan without applying it",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			plan, err := a.readOnlyPlan(cmd.Context())
			if err != nil {
				return err
			}
			printPlan(plan, a.log)
			return nil
		},
	}
}

func newDeployCmd(g *globalFlags, use, short string, phases phase) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			if a.cfg.DryRun {
				plan, err := a.readOnlyPlan(ctx)
				if err != nil {
					return err
				}
				printPlan(plan, a.log)
				a.log.Info("dry run, nothing applied", nil)
				return nil
			}

			m := a.newMigrator()
			if err := a.ensure(ctx, m); err != nil {
				return err
			}
			plan, err := m.Plan(ctx)
			if err != nil {
				return fmt.Errorf("plan failed: %w", err)
			}
			logPlan(plan, a.log)

			if phases&phaseOffline != 0 {
				if err := m.DeployOffline(ctx); err != nil {
					a.log.Error("offline deployment failed", map[string]any{"error": err.Error()})
					return err
				}
				a.log.Info("offline deployment complete", map[string]any{
					"migrations":  len(plan.Offline),
					"stored_code": len(plan.StoredCode),
				})
			}
			if phases&phaseOnline != 0 {
				if err := m.DeployOnline(ctx); err != nil {
					a.log.Error("online deployment failed", map[string]any{"error": err.Error()})
					return err
				}
				a.log.Info("online deployment complete", map[string]any{"migrations": len(plan.Online)})
			}
			return nil
		},
	}
}

func newBaselineCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "baseline <migration-name>",
		Short: "Record migrations through <migration-name> as already applied",
		Long: `baseline puts an existing database under management. When the journal is empty,
every migration up to and including the named one is recorded as complete
without being run. A journal that already has entries is left untouched.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, g)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.newMigrator().EnsureBaseline(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.log.Info("baseline complete", map[string]any{"through": args[0]})
			return nil
		},
	}
}

// readOnlyPlan plans without writing to the target. A journal that does not
// exist yet is treated as empty.
func (a *app) readOnlyPlan(ctx context.Context) (*migrator.DeploymentPlan, error) {
	plan, err := a.newMigrator().Plan(ctx)
	if errors.Is(err, migrator.ErrJournalNotCreated) {
		a.log.Debug("journal not created yet, planning against an empty journal", nil)
		m := a.newMigratorWith(journal.NewMemory())
		if a.cfg.Baseline != "" {
			if err := m.EnsureBaseline(ctx, a.cfg.Baseline); err != nil {
				return nil, err
			}
		}
		plan, err = m.Plan(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("plan failed: %w", err)
	}
	return plan, nil
}

func logPlan(plan *migrator.DeploymentPlan, log *logger.Logger) {
	for _, m := range plan.Offline {
		log.Debug("plan.offline", map[string]any{"number": m.Number, "name": m.Name, "fingerprint": m.Fingerprint})
	}
	for _, m := range plan.Online {
		log.Debug("plan.online", map[string]any{"number": m.Number, "name": m.Name, "fingerprint": m.Fingerprint})
	}
	for _, d := range plan.StoredCode {
		log.Debug("plan.stored_code", map[string]any{"name": d.Name, "level": d.DependencyLevel, "fingerprint": d.Fingerprint})
	}
}

type planItem struct {
	Kind        string `json:"kind"` // offline|online|stored_code
	Number      int    `json:"number,omitempty"`
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
}

type planSummary struct {
	LastCompleted int        `json:"last_completed_migration"`
	OfflineError  string     `json:"offline_error,omitempty"`
	OnlineError   string     `json:"online_error,omitempty"`
	Pending       []planItem `json:"pending"`
}

func summarize(plan *migrator.DeploymentPlan) planSummary {
	s := planSummary{LastCompleted: plan.LastCompletedMigrationNumber, Pending: []planItem{}}
	if plan.OfflineErr != nil {
		s.OfflineError = plan.OfflineErr.Error()
	}
	if plan.OnlineErr != nil {
		s.OnlineError = plan.OnlineErr.Error()
	}
	for _, m := range plan.Offline {
		s.Pending = append(s.Pending, planItem{Kind: "offline", Number: m.Number, Name: m.Name, Fingerprint: m.Fingerprint})
	}
	for _, m := range plan.Online {
		s.Pending = append(s.Pending, planItem{Kind: "online", Number: m.Number, Name: m.Name, Fingerprint: m.Fingerprint})
	}
	for _, d := range plan.StoredCode {
		s.Pending = append(s.Pending, planItem{Kind: "stored_code", Name: d.Name, Fingerprint: d.Fingerprint})
	}
	return s
}

func printPlan(plan *migrator.DeploymentPlan, log *logger.Logger) {
	s := summarize(plan)
	if log.JSONEnabled() {
		_ = json.NewEncoder(os.Stdout).Encode(s)
		return
	}
	fmt.Printf("last completed migration: %d\n", s.LastCompleted)
	if s.OfflineError != "" {
		fmt.Printf("offline blocked: %s\n", s.OfflineError)
	}
	if s.OnlineError != "" {
		fmt.Printf("online blocked: %s\n", s.OnlineError)
	}
	if len(s.Pending) == 0 {
		fmt.Println("nothing to deploy")
		return
	}
	for _, it := range s.Pending {
		fp := it.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Printf("%-12s %6s %-40s %s\n", it.Kind, numberOrDash(it.Number, it.Kind), it.Name, fp)
	}
}

func numberOrDash(n int, kind string) string {
	if kind == "stored_code" {
		return "-"
	}
	return fmt.Sprint(n)
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments", cmd.Name())}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("%s requires %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}
