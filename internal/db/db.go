package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour used for the journal table.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var (
	ErrUnknownDriver = errors.New("unknown database driver")
	ErrBadTableName  = errors.New("invalid table name")
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// Target describes how to reach a store: the database/sql driver name, the
// DSN handed to that driver and the journal dialect.
type Target struct {
	Driver  string
	DSN     string
	Dialect Dialect
}

// Resolve works out the driver for dsn. An explicit driver wins; otherwise
// the DSN shape decides.
func Resolve(driver, dsn string) (Target, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return Target{Driver: "mysql", DSN: strings.TrimPrefix(dsn, "mysql://"), Dialect: MySQL}, nil
	case "postgres", "postgresql", "pq":
		return Target{Driver: "postgres", DSN: dsn, Dialect: Postgres}, nil
	case "sqlite", "sqlite3":
		return Target{Driver: "sqlite", DSN: strings.TrimPrefix(dsn, "sqlite://"), Dialect: SQLite}, nil
	case "libsql", "turso":
		return Target{Driver: "libsql", DSN: dsn, Dialect: SQLite}, nil
	case "":
	default:
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}

	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Target{Driver: "postgres", DSN: dsn, Dialect: Postgres}, nil
	case strings.HasPrefix(lower, "libsql://"):
		return Target{Driver: "libsql", DSN: dsn, Dialect: SQLite}, nil
	case strings.HasPrefix(lower, "mysql://"):
		return Target{Driver: "mysql", DSN: dsn[len("mysql://"):], Dialect: MySQL}, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return Target{Driver: "sqlite", DSN: dsn[len("sqlite://"):], Dialect: SQLite}, nil
	case strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return Target{Driver: "sqlite", DSN: dsn, Dialect: SQLite}, nil
	case strings.Contains(dsn, "@tcp("), strings.Contains(dsn, "@unix("), strings.Contains(dsn, "@/"):
		return Target{Driver: "mysql", DSN: dsn, Dialect: MySQL}, nil
	}
	return Target{}, fmt.Errorf("%w: cannot infer driver from DSN", ErrUnknownDriver)
}

// Open connects to the target. It does not ping.
func Open(t Target) (*sqlx.DB, error) {
	dsn := t.DSN
	if t.Dialect == MySQL {
		dsn = mysqlDSN(dsn)
	}
	db, err := sqlx.Open(t.Driver, dsn)
	if err != nil {
		return nil, err
	}
	switch t.Dialect {
	case SQLite:
		// one writer; in-memory databases are per connection
		db.SetMaxOpenConns(1)
	default:
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// mysqlDSN turns on parseTime and multiStatements, which script files need,
// and clientFoundRows so the journal upsert sees matched rather than changed rows.
func mysqlDSN(dsn string) string {
	lower := strings.ToLower(dsn)
	for _, opt := range []string{"parseTime=true", "multiStatements=true", "clientFoundRows=true"} {
		key := strings.ToLower(opt[:strings.Index(opt, "=")+1])
		if strings.Contains(lower, key) {
			continue
		}
		if strings.Contains(dsn, "?") {
			dsn += "&" + opt
		} else {
			dsn += "?" + opt
		}
	}
	return dsn
}

func ValidTableName(table string) error {
	if !tableNameRe.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrBadTableName, table)
	}
	return nil
}

// EnsureJournalTable creates the journal table if it does not exist.
func EnsureJournalTable(ctx context.Context, db *sqlx.DB, d Dialect, table string) error {
	if err := ValidTableName(table); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, JournalDDL(d, table))
	return err
}

// JournalDDL returns the CREATE TABLE statement for the journal.
// Migrations and stored code share the table; stored code rows are
// repeatable and carry the migration number they were applied against.
func JournalDDL(d Dialect, table string) string {
	switch d {
	case MySQL:
		return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  migration_number BIGINT NOT NULL,
  name VARCHAR(255) NOT NULL PRIMARY KEY,
  repeatable TINYINT(1) NOT NULL,
  complete TINYINT(1) NOT NULL,
  completed_at TIMESTAMP NULL,
  fingerprint VARCHAR(64) NOT NULL,
  applied_by VARCHAR(255) NOT NULL,
  run_id CHAR(36) NOT NULL
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
`, table)
	case Postgres:
		return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  migration_number BIGINT NOT NULL,
  name VARCHAR(255) NOT NULL PRIMARY KEY,
  repeatable BOOLEAN NOT NULL,
  complete BOOLEAN NOT NULL,
  completed_at TIMESTAMPTZ NULL,
  fingerprint VARCHAR(64) NOT NULL,
  applied_by VARCHAR(255) NOT NULL,
  run_id UUID NOT NULL
)`, table)
	default:
		return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  migration_number INTEGER NOT NULL,
  name TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
  repeatable INTEGER NOT NULL,
  complete INTEGER NOT NULL,
  completed_at TIMESTAMP NULL,
  fingerprint TEXT NOT NULL,
  applied_by TEXT NOT NULL,
  run_id TEXT NOT NULL
)`, table)
	}
}

// TableExists reports whether table is present in the connected database.
func TableExists(ctx context.Context, db *sqlx.DB, d Dialect, table string) (bool, error) {
	if err := ValidTableName(table); err != nil {
		return false, err
	}
	schema, name := splitTable(table)
	var q string
	var args []any
	switch d {
	case MySQL:
		if schema == "" {
			q = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`
			args = []any{name}
		} else {
			q = `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`
			args = []any{schema, name}
		}
	case Postgres:
		// to_regclass resolves a qualified name itself
		q = `SELECT COUNT(*) FROM (SELECT to_regclass(?) AS t) r WHERE r.t IS NOT NULL`
		args = []any{table}
	default:
		master := "sqlite_master"
		if schema != "" {
			master = schema + ".sqlite_master"
		}
		q = fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE type = 'table' AND name = ?`, master)
		args = []any{name}
	}
	var n int
	if err := db.GetContext(ctx, &n, db.Rebind(q), args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

// splitTable separates an optional schema qualifier from a table name that
// has passed ValidTableName.
func splitTable(table string) (schema, name string) {
	if i := strings.IndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}
