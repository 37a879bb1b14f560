// Package source discovers migrations and stored code definitions.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mirajehossain/phasedmigrate/internal/checksum"
	"github.com/mirajehossain/phasedmigrate/internal/fsutil"
	"github.com/mirajehossain/phasedmigrate/internal/migrator"
	"github.com/mirajehossain/phasedmigrate/internal/runner"
)

// FileSource reads migration scripts from one directory and stored code
// definitions from another. Fingerprints are the MD5 of the file text.
type FileSource struct {
	// FS is the filesystem to read; nil means the local disk, in which case
	// the directories are ordinary paths.
	FS            fs.FS
	MigrationsDir string
	StoredCodeDir string
	// Pattern filters filenames, "*.sql" when empty.
	Pattern string
	Runner  runner.Runner
}

// open returns the filesystem and directory to scan for dir.
func (s FileSource) open(dir string) (fs.FS, string) {
	if s.FS != nil {
		return s.FS, dir
	}
	return os.DirFS(dir), "."
}

func (s FileSource) Migrations(ctx context.Context) ([]migrator.Migration, error) {
	fsys, dir := s.open(s.MigrationsDir)
	files, err := fsutil.ScanMigrations(fsys, dir, s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.MigrationsDir, err)
	}
	out := make([]migrator.Migration, 0, len(files))
	for _, f := range files {
		script, fp, err := s.load(fsys, s.MigrationsDir, f.Name, f.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, migrator.Migration{
			Number:      f.Number,
			Name:        f.Name,
			Fingerprint: fp,
			Online:      f.Online,
			Action:      runner.Action{Runner: s.Runner, Script: script},
		})
	}
	return out, nil
}

func (s FileSource) StoredCode(ctx context.Context) ([]migrator.StoredCodeDefinition, error) {
	if s.StoredCodeDir == "" {
		return nil, nil
	}
	fsys, dir := s.open(s.StoredCodeDir)
	files, err := fsutil.ScanStoredCode(fsys, dir, s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.StoredCodeDir, err)
	}
	out := make([]migrator.StoredCodeDefinition, 0, len(files))
	for _, f := range files {
		script, fp, err := s.load(fsys, s.StoredCodeDir, f.Name, f.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, migrator.StoredCodeDefinition{
			Name:            f.Name,
			Fingerprint:     fp,
			DependencyLevel: f.Level,
			Action:          runner.Action{Runner: s.Runner, Script: script},
		})
	}
	return out, nil
}

func (s FileSource) load(fsys fs.FS, dir, name, p string) (runner.Script, string, error) {
	b, err := fs.ReadFile(fsys, p)
	if err != nil {
		return runner.Script{}, "", err
	}
	script := runner.Script{Name: name, Path: p, Text: string(b)}
	if s.FS == nil {
		script.DiskPath = filepath.Join(dir, filepath.FromSlash(p))
	}
	return script, checksum.Fingerprint(b), nil
}
