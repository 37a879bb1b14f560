package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mirajehossain/phasedmigrate/internal/fsutil"
	"github.com/mirajehossain/phasedmigrate/internal/logger"
)

func newCreateCmd(g *globalFlags) *cobra.Command {
	var online, stored bool
	var level int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold the next numbered migration, or a stored code definition with --stored",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return usageError{err}
			}
			log := logger.NewWriter(os.Stdout, cfg.JSON, cfg.Verbose)
			var path string
			if stored {
				path, err = createStoredCode(cfg.StoredCodeDir, args[0], level)
			} else {
				path, err = createMigration(cfg.MigrationsDir, cfg.Pattern, args[0], online)
			}
			if err != nil {
				log.Error("create failed", map[string]any{"error": err.Error()})
				return err
			}
			log.Info("created script", map[string]any{"path": path})
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "Mark the migration as safe to run while the application is live")
	cmd.Flags().BoolVar(&stored, "stored", false, "Create a stored code definition instead of a migration")
	cmd.Flags().IntVar(&level, "level", 0, "Dependency level of a stored code definition")
	return cmd
}

func createMigration(dir, pattern, name string, online bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	existing, err := fsutil.ScanMigrations(os.DirFS(dir), ".", pattern)
	if err != nil {
		return "", err
	}
	next := fsutil.NextNumber(existing)
	base := fmt.Sprintf("%04d_%s", next, sanitize(name))
	body := "-- write your OFFLINE migration here; it runs while the application is down\n"
	if online {
		base = fmt.Sprintf("%04d_online.%s", next, sanitize(name))
		body = "-- write your ONLINE migration here; it must be safe to re-run if interrupted\n"
	}
	// the filename alone decides the phase, so it must read back the same way
	_, _, parsedOnline, err := fsutil.ParseMigrationName(base + ".sql")
	if err != nil {
		return "", err
	}
	if parsedOnline != online {
		return "", fmt.Errorf("%w: %s would not be planned as %s", fsutil.ErrBadFilename, base+".sql", phaseName(online))
	}
	return writeNew(filepath.Join(dir, base+".sql"), body)
}

func createStoredCode(dir, name string, level int) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := sanitize(name)
	if level > 0 {
		base = fmt.Sprintf("%02d_%s", level, base)
	}
	return writeNew(filepath.Join(dir, base+".sql"), "-- CREATE OR REPLACE your view, function or procedure here\n")
}

func writeNew(path, body string) (string, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(body); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

func sanitize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, ".", "_")
	return s
}

func phaseName(online bool) string {
	if online {
		return "online"
	}
	return "offline"
}
