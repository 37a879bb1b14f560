package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DSN           string `yaml:"dsn" toml:"dsn"`
	Driver        string `yaml:"driver" toml:"driver"`
	MigrationsDir string `yaml:"migrations_dir" toml:"migrations_dir"`
	StoredCodeDir string `yaml:"stored_code_dir" toml:"stored_code_dir"`
	Pattern       string `yaml:"pattern" toml:"pattern"`
	JournalTable  string `yaml:"journal_table" toml:"journal_table"`
	AppliedBy     string `yaml:"applied_by" toml:"applied_by"`
	JSON          bool   `yaml:"json" toml:"json"`
	Verbose       bool   `yaml:"verbose" toml:"verbose"`
	DryRun        bool   `yaml:"dry_run" toml:"dry_run"`
	// IncludeOnlineInOffline plans every pending migration into the offline
	// phase.
	IncludeOnlineInOffline bool   `yaml:"include_online_in_offline" toml:"include_online_in_offline"`
	Baseline               string `yaml:"baseline" toml:"baseline"`
	// Reporter is console, teamcity or log.
	Reporter string       `yaml:"reporter" toml:"reporter"`
	Runner   RunnerConfig `yaml:"runner" toml:"runner"`
}

// RunnerConfig selects an external client for scripts. With an empty
// Command scripts are executed on the journal's own connection.
type RunnerConfig struct {
	Command       string   `yaml:"command" toml:"command"`
	Args          []string `yaml:"args" toml:"args"`
	NoTransaction bool     `yaml:"no_transaction" toml:"no_transaction"`
}

func Default() *Config {
	return &Config{
		MigrationsDir: "./migrations",
		StoredCodeDir: "./stored",
		Pattern:       "*.sql",
		JournalTable:  "schema_journal",
		Reporter:      "console",
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(b, cfg)
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotenv merges variables from a .env file. A missing file is ignored.
func LoadDotenv(cfg *Config, path string) (*Config, error) {
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return merge(cfg, func(k string) string { return values[k] }), nil
}

// MergeEnv merges process environment variables.
func MergeEnv(cfg *Config) *Config {
	return merge(cfg, os.Getenv)
}

func merge(cfg *Config, get func(string) string) *Config {
	if v := get("DB_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := get("DB_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := get("MIGRATIONS_DIR"); v != "" {
		cfg.MigrationsDir = v
	}
	if v := get("STORED_CODE_DIR"); v != "" {
		cfg.StoredCodeDir = v
	}
	if v := get("MIGRATIONS_PATTERN"); v != "" {
		cfg.Pattern = v
	}
	if v := get("MIGRATIONS_TABLE"); v != "" {
		cfg.JournalTable = v
	}
	if v := get("APPLIED_BY"); v != "" {
		cfg.AppliedBy = v
	}
	if v := get("MIGRATIONS_REPORTER"); v != "" {
		cfg.Reporter = v
	}
	if v := get("INCLUDE_ONLINE_IN_OFFLINE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.IncludeOnlineInOffline = b
		}
	}
	return cfg
}
