package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestScanDirAndSort(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0002_online.backfill_users.sql"), []byte("-- up"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "0001_init.sql"), []byte("-- up"), 0o644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0o644)
	_ = os.Mkdir(filepath.Join(dir, "sub"), 0o755)

	files, err := ScanMigrations(os.DirFS(dir), ".", "")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Number != 1 || files[0].Name != "init" || files[0].Online {
		t.Fatalf("unexpected first file: %#v", files[0])
	}
	if files[1].Number != 2 || files[1].Name != "backfill_users" || !files[1].Online {
		t.Fatalf("unexpected second file: %#v", files[1])
	}
	if NextNumber(files) != 3 {
		t.Fatalf("next number: got %d", NextNumber(files))
	}
}

func TestParseMigrationName(t *testing.T) {
	cases := []struct {
		in     string
		number int
		name   string
		online bool
	}{
		{"001 Create tables.sql", 1, "Create tables", false},
		{"12 online Add index.sql", 12, "Add index", true},
		{"0003_ONLINE.reindex.sql", 3, "reindex", true},
		{"0003-ONLINE-reindex.sql", 3, "ONLINE-reindex", false},
		{"0004_online_users_table.sql", 4, "online_users_table", false},
		{"4_onlineish.sql", 4, "onlineish", false},
	}
	for _, c := range cases {
		number, name, online, err := ParseMigrationName(c.in)
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if number != c.number || name != c.name || online != c.online {
			t.Fatalf("%s: got (%d, %q, %v)", c.in, number, name, online)
		}
	}
	if _, _, _, err := ParseMigrationName("init.sql"); !errors.Is(err, ErrBadFilename) {
		t.Fatalf("expected ErrBadFilename, got %v", err)
	}
	if _, _, _, err := ParseMigrationName("0001.sql"); !errors.Is(err, ErrBadFilename) {
		t.Fatalf("expected ErrBadFilename for missing name, got %v", err)
	}
}

func TestScanStoredCode(t *testing.T) {
	fsys := fstest.MapFS{
		"code/20_active_users.sql": {Data: []byte("create view")},
		"code/users_by_id.sql":     {Data: []byte("create function")},
		"code/10 audit.sql":        {Data: []byte("create procedure")},
	}
	files, err := ScanStoredCode(fsys, "code", "*.sql")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	got := []string{files[0].Name, files[1].Name, files[2].Name}
	want := []string{"users_by_id", "audit", "active_users"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: got %v want %v", got, want)
		}
	}
	if files[2].Level != 20 || files[2].Path != "code/20_active_users.sql" {
		t.Fatalf("unexpected file: %#v", files[2])
	}

	missing, err := ScanStoredCode(fsys, "nope", "*.sql")
	if err != nil || missing != nil {
		t.Fatalf("missing dir: %v %v", missing, err)
	}
}
