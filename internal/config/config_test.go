package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.JournalTable != "schema_journal" {
		t.Fatal("default table mismatch")
	}
	if c.Pattern != "*.sql" || c.Reporter != "console" {
		t.Fatal("default pattern or reporter mismatch")
	}
}

func TestLoadYAMLAndMergeEnv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	body := "dsn: mysql://u:p@/db\nmigrations_dir: ./migs\njournal_table: t\napplied_by: me\nrunner:\n  command: mysql\n  args: [\"-e\", \"source {file}\"]\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MigrationsDir != "./migs" || cfg.JournalTable != "t" || cfg.Runner.Command != "mysql" || len(cfg.Runner.Args) != 2 {
		t.Fatalf("yaml load mismatch: %+v", cfg)
	}
	if cfg.StoredCodeDir != "./stored" {
		t.Fatal("defaults lost after yaml load")
	}
	t.Setenv("MIGRATIONS_DIR", "./x")
	t.Setenv("MIGRATIONS_TABLE", "y")
	t.Setenv("APPLIED_BY", "you")
	t.Setenv("INCLUDE_ONLINE_IN_OFFLINE", "true")
	cfg = MergeEnv(cfg)
	if cfg.MigrationsDir != "./x" || cfg.JournalTable != "y" || cfg.AppliedBy != "you" || !cfg.IncludeOnlineInOffline {
		t.Fatal("env merge mismatch")
	}
}

func TestLoadTOML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "migrate.toml")
	body := "dsn = \"postgres://localhost/app\"\nstored_code_dir = \"./code\"\n\n[runner]\nno_transaction = true\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DSN != "postgres://localhost/app" || cfg.StoredCodeDir != "./code" || !cfg.Runner.NoTransaction {
		t.Fatalf("toml load mismatch: %+v", cfg)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	if err := os.WriteFile(p, []byte("DB_DSN=file:app.db\nDB_DRIVER=sqlite\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadDotenv(Default(), p)
	if err != nil {
		t.Fatalf("dotenv: %v", err)
	}
	if cfg.DSN != "file:app.db" || cfg.Driver != "sqlite" {
		t.Fatalf("dotenv mismatch: %+v", cfg)
	}
	if _, err := LoadDotenv(cfg, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing dotenv should be ignored: %v", err)
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	p := filepath.Join(t.TempDir(), "cfg.ini")
	_ = os.WriteFile(p, []byte("x"), 0o644)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for .ini")
	}
}
