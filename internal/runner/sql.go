package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/mirajehossain/phasedmigrate/internal/migrator"
)

// SQL runs script text on an open connection. MySQL connections need
// multiStatements=true for scripts with several statements.
type SQL struct {
	DB *sqlx.DB
	// NoTransaction runs scripts outside a transaction, which statements
	// such as CREATE INDEX CONCURRENTLY require.
	NoTransaction bool
}

func (s *SQL) RunScript(ctx context.Context, sc Script, r migrator.Reporter) error {
	if strings.TrimSpace(sc.Text) == "" {
		r.Report(fmt.Sprintf("%s is empty, nothing to execute.", sc.Name))
		return nil
	}
	if s.NoTransaction {
		if _, err := s.DB.ExecContext(ctx, sc.Text); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrScriptFailed, sc.Name, err)
		}
		return nil
	}
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, sc.Text); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %s: %v", ErrScriptFailed, sc.Name, err)
	}
	return tx.Commit()
}
