package store

import (
	"context"
	"fmt"
	"strings"
)

// Bootstrap creates the built-in domain tables if they are missing. It runs
// once at startup and is idempotent.
func (s *Store) Bootstrap(ctx context.Context) error {
	for _, stmt := range splitStatements(s.Dialect.BaseTablesSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap base tables: %w", err)
		}
	}
	return nil
}

// splitStatements breaks a DDL script into individual statements. The base
// table scripts contain no string literals with semicolons.
func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		stmts = append(stmts, part)
	}
	return stmts
}
