package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultPattern selects script files in a directory.
const DefaultPattern = "*.sql"

var ErrBadFilename = errors.New("bad script filename")

var (
	migrationRe = regexp.MustCompile(`^(\d+)[ _\-.]*(.*)$`)
	storedRe    = regexp.MustCompile(`^(\d*)[ _\-.]*(.*)$`)

	// The marker is "online" followed by a space or a dot. Underscores and
	// dashes are not accepted so a name such as online_users stays offline.
	onlineRe = regexp.MustCompile(`(?i)^online[ .]+(.+)$`)
)

// MigrationFile is a migration script found on disk: 0007_online.backfill.sql
// and "0007 online backfill.sql" are migration 7, online, named "backfill";
// 0008_online_users.sql is migration 8, offline, named "online_users".
type MigrationFile struct {
	Number int
	Name   string
	Online bool
	Path   string
}

// StoredCodeFile is a stored code script: 20_active_users.sql has
// dependency level 20 and is named "active_users". The level is not part of
// the name, so a definition can move between levels without becoming a new
// object.
type StoredCodeFile struct {
	Level int
	Name  string
	Path  string
}

// ParseMigrationName splits a migration filename into number, online flag
// and name.
func ParseMigrationName(filename string) (number int, name string, online bool, err error) {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	m := migrationRe.FindStringSubmatch(base)
	if m == nil {
		return 0, "", false, fmt.Errorf("%w: %s: migration filenames must begin with a digit", ErrBadFilename, filename)
	}
	number, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false, fmt.Errorf("%w: %s: %v", ErrBadFilename, filename, err)
	}
	name = strings.TrimSpace(m[2])
	if o := onlineRe.FindStringSubmatch(name); o != nil {
		online = true
		name = strings.TrimSpace(o[1])
	}
	if name == "" {
		return 0, "", false, fmt.Errorf("%w: %s: missing name", ErrBadFilename, filename)
	}
	return number, name, online, nil
}

// ParseStoredCodeName splits a stored code filename into dependency level
// and name. Files without leading digits are level 0.
func ParseStoredCodeName(filename string) (level int, name string, err error) {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	m := storedRe.FindStringSubmatch(base)
	if m[1] != "" {
		if level, err = strconv.Atoi(m[1]); err != nil {
			return 0, "", fmt.Errorf("%w: %s: %v", ErrBadFilename, filename, err)
		}
	}
	name = strings.TrimSpace(m[2])
	if name == "" {
		return 0, "", fmt.Errorf("%w: %s: missing name", ErrBadFilename, filename)
	}
	return level, name, nil
}

// ScanMigrations lists migration scripts in dir of fsys matching pattern,
// ordered by number.
func ScanMigrations(fsys fs.FS, dir, pattern string) ([]MigrationFile, error) {
	names, err := scan(fsys, dir, pattern)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationFile, 0, len(names))
	for _, n := range names {
		number, name, online, err := ParseMigrationName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, MigrationFile{Number: number, Name: name, Online: online, Path: path.Join(dir, n)})
	}
	SortMigrations(out)
	return out, nil
}

// ScanStoredCode lists stored code scripts in dir of fsys matching pattern,
// ordered by dependency level. A missing directory yields no definitions.
func ScanStoredCode(fsys fs.FS, dir, pattern string) ([]StoredCodeFile, error) {
	names, err := scan(fsys, dir, pattern)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]StoredCodeFile, 0, len(names))
	for _, n := range names {
		level, name, err := ParseStoredCodeName(n)
		if err != nil {
			return nil, err
		}
		out = append(out, StoredCodeFile{Level: level, Name: name, Path: path.Join(dir, n)})
	}
	SortStoredCode(out)
	return out, nil
}

func scan(fsys fs.FS, dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("pattern %q: %w", pattern, err)
	}
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := path.Match(pattern, e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func SortMigrations(files []MigrationFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Number == files[j].Number {
			return files[i].Name < files[j].Name
		}
		return files[i].Number < files[j].Number
	})
}

func SortStoredCode(files []StoredCodeFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Level == files[j].Level {
			return files[i].Name < files[j].Name
		}
		return files[i].Level < files[j].Level
	})
}

// NextNumber returns the number a new migration should get.
func NextNumber(files []MigrationFile) int {
	next := 1
	for _, f := range files {
		if f.Number >= next {
			next = f.Number + 1
		}
	}
	return next
}
