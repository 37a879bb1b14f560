package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/mirajehossain/phasedmigrate/internal/config"
	"github.com/mirajehossain/phasedmigrate/internal/db"
	"github.com/mirajehossain/phasedmigrate/internal/journal"
	"github.com/mirajehossain/phasedmigrate/internal/logger"
	"github.com/mirajehossain/phasedmigrate/internal/migrator"
	"github.com/mirajehossain/phasedmigrate/internal/progress"
	"github.com/mirajehossain/phasedmigrate/internal/runner"
	"github.com/mirajehossain/phasedmigrate/internal/source"
)

type globalFlags struct {
	configPath string
	envFile    string
	dsn        string
	driver     string
	dir        string
	storedDir  string
	pattern    string
	table      string
	appliedBy  string
	reporter   string
	baseline   string
	json       bool
	verbose    bool
	dryRun     bool
	allOffline bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "phasedmigrate",
		Short: "Plan and apply offline and online database migrations",
		Long: `phasedmigrate compares numbered migration scripts and stored code definitions
with the journal kept in the target database and applies what is missing in two
phases: offline (application down) followed by online (application live).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Optional YAML or TOML config path")
	pf.StringVar(&g.envFile, "env-file", ".env", "Optional .env file")
	pf.StringVar(&g.dsn, "dsn", "", "Database DSN (or DB_DSN)")
	pf.StringVar(&g.driver, "driver", "", "mysql, postgres, sqlite or libsql (default: inferred from DSN)")
	pf.StringVar(&g.dir, "dir", "", "Migrations directory (or MIGRATIONS_DIR)")
	pf.StringVar(&g.storedDir, "stored-dir", "", "Stored code definitions directory (or STORED_CODE_DIR)")
	pf.StringVar(&g.pattern, "pattern", "", "Script filename pattern")
	pf.StringVar(&g.table, "table", "", "Journal table name")
	pf.StringVar(&g.appliedBy, "applied-by", "", "Override applied_by value")
	pf.StringVar(&g.reporter, "reporter", "", "Progress output: console, teamcity, log or none")
	pf.StringVar(&g.baseline, "baseline", "", "Baseline an unmanaged database through this migration before deploying")
	pf.BoolVar(&g.json, "json", false, "JSON logs")
	pf.BoolVar(&g.verbose, "verbose", false, "Verbose logs")
	pf.BoolVar(&g.dryRun, "dry-run", false, "Plan only; do not execute")
	pf.BoolVar(&g.allOffline, "all-offline", false, "Run pending online migrations during the offline phase")

	root.AddCommand(
		newStatusCmd(g),
		newDeployCmd(g, "offline", "Apply offline migrations and changed stored code", phaseOffline),
		newDeployCmd(g, "online", "Apply online migrations", phaseOnline),
		newDeployCmd(g, "up", "Apply the offline phase followed by the online phase", phaseOffline|phaseOnline),
		newBaselineCmd(g),
		newCreateCmd(g),
		newJournalCmd(g),
	)
	return root
}

// loadConfig layers defaults, config file, .env, environment and flags.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if cfg, err = config.LoadDotenv(cfg, g.envFile); err != nil {
		return nil, err
	}
	cfg = config.MergeEnv(cfg)

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("dsn", &cfg.DSN, g.dsn)
	set("driver", &cfg.Driver, g.driver)
	set("dir", &cfg.MigrationsDir, g.dir)
	set("stored-dir", &cfg.StoredCodeDir, g.storedDir)
	set("pattern", &cfg.Pattern, g.pattern)
	set("table", &cfg.JournalTable, g.table)
	set("applied-by", &cfg.AppliedBy, g.appliedBy)
	set("reporter", &cfg.Reporter, g.reporter)
	set("baseline", &cfg.Baseline, g.baseline)
	if flags.Changed("json") {
		cfg.JSON = g.json
	}
	if flags.Changed("verbose") {
		cfg.Verbose = g.verbose
	}
	if flags.Changed("dry-run") {
		cfg.DryRun = g.dryRun
	}
	if flags.Changed("all-offline") {
		cfg.IncludeOnlineInOffline = g.allOffline
	}
	return cfg, nil
}

// app holds everything a command needs to talk to the target.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *sqlx.DB
	journal  *journal.SQL
	source   migrator.Source
	reporter migrator.Reporter
}

func openApp(cmd *cobra.Command, g *globalFlags) (*app, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, usageError{err}
	}
	log := logger.NewWriter(os.Stdout, cfg.JSON, cfg.Verbose)
	if cfg.DSN == "" {
		return nil, usageError{errors.New("--dsn or DB_DSN is required")}
	}
	target, err := db.Resolve(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, usageError{err}
	}
	if err := db.ValidTableName(cfg.JournalTable); err != nil {
		return nil, usageError{err}
	}
	database, err := db.Open(target)
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}
	if err := database.PingContext(cmd.Context()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	log.Debug("connected", map[string]any{"driver": target.Driver, "dialect": string(target.Dialect)})

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      database,
		journal: journal.NewSQL(database, target.Dialect, cfg.JournalTable, cfg.AppliedBy),
	}
	a.source = source.FileSource{
		MigrationsDir: cfg.MigrationsDir,
		StoredCodeDir: cfg.StoredCodeDir,
		Pattern:       cfg.Pattern,
		Runner:        a.scriptRunner(),
	}
	a.reporter = a.newReporter()
	return a, nil
}

func (a *app) Close() { _ = a.db.Close() }

func (a *app) scriptRunner() runner.Runner {
	rc := a.cfg.Runner
	if rc.Command != "" {
		return &runner.Command{Name: rc.Command, Args: rc.Args}
	}
	return &runner.SQL{DB: a.db, NoTransaction: rc.NoTransaction}
}

func (a *app) newReporter() migrator.Reporter {
	switch strings.ToLower(a.cfg.Reporter) {
	case "teamcity":
		return &progress.TeamCity{W: os.Stdout}
	case "log":
		return progress.NewLog(a.log)
	case "none":
		return progress.Discard{}
	}
	if a.cfg.JSON {
		return progress.NewLog(a.log)
	}
	return progress.NewConsole(os.Stdout)
}

func (a *app) newMigrator() *migrator.Migrator {
	return migrator.New(a.journal, a.source, a.reporter, a.cfg.IncludeOnlineInOffline)
}

func (a *app) newMigratorWith(j migrator.Journal) *migrator.Migrator {
	return migrator.New(j, a.source, a.reporter, a.cfg.IncludeOnlineInOffline)
}

// ensure creates the journal and applies the configured baseline.
func (a *app) ensure(ctx context.Context, m *migrator.Migrator) error {
	if err := m.EnsureJournal(ctx); err != nil {
		return fmt.Errorf("ensure journal failed: %w", err)
	}
	if a.cfg.Baseline == "" {
		return nil
	}
	if err := m.EnsureBaseline(ctx, a.cfg.Baseline); err != nil {
		return err
	}
	a.log.Info("baseline ensured", map[string]any{"through": a.cfg.Baseline})
	return nil
}
