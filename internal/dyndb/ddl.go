package dyndb

import (
	"context"
	"fmt"
	"strings"

	"coverdesk/internal/store"
)

// ColumnSpec describes one column of a table to be created.
type ColumnSpec struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	PrimaryKey    bool   `json:"pk"`
	AutoIncrement bool   `json:"auto_increment"`
}

// DDL builds and executes CREATE/DROP TABLE statements from column
// specifications. Every name is sanitized before it reaches statement text.
type DDL struct {
	store *store.Store
}

func NewDDL(s *store.Store) *DDL {
	return &DDL{store: s}
}

// CreateTable issues a create-if-absent statement for the given columns.
// Composite primary keys are allowed; all columns flagged pk join the key.
func (d *DDL) CreateTable(ctx context.Context, table string, cols []ColumnSpec) error {
	name, err := SafeIdent(table)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("create table %s: no columns", name)
	}

	dialect := d.store.Dialect

	var pkCols []string
	for _, c := range cols {
		if c.PrimaryKey {
			colName, err := SafeIdent(c.Name)
			if err != nil {
				return err
			}
			pkCols = append(pkCols, colName)
		}
	}

	// SQLite expresses auto-increment as an inline INTEGER PRIMARY KEY, which
	// replaces the table-level key clause for single-column keys.
	inlinePK := dialect.InlineAutoIncrementPK() && len(pkCols) == 1

	var parts []string
	for _, c := range cols {
		colName, err := SafeIdent(c.Name)
		if err != nil {
			return err
		}

		if inlinePK && c.PrimaryKey && c.AutoIncrement {
			parts = append(parts, colName+" INTEGER PRIMARY KEY AUTOINCREMENT")
			continue
		}

		clause := colName + " " + dialect.ColumnType(c.Type)
		if !c.Nullable {
			clause += " NOT NULL"
		}
		if c.AutoIncrement && dialect.AutoIncrementClause() != "" {
			clause += " " + dialect.AutoIncrementClause()
		}
		if inlinePK && c.PrimaryKey {
			clause += " PRIMARY KEY"
		}
		parts = append(parts, clause)
	}

	if len(pkCols) > 0 && !inlinePK {
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}

	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, strings.Join(parts, ", "))
	if _, err := d.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", name, d.store.Dialect.MapError(err))
	}
	return nil
}

// DropTable issues a drop-if-exists statement. Dropping a missing table is
// not an error.
func (d *DDL) DropTable(ctx context.Context, table string) error {
	name, err := SafeIdent(table)
	if err != nil {
		return err
	}
	if _, err := d.store.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("drop table %s: %w", name, err)
	}
	return nil
}
