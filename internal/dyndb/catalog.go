package dyndb

import (
	"context"
	"fmt"

	"coverdesk/internal/store"
)

// TableDescriptor is a fresh snapshot of one table's schema. Descriptors are
// read from the backing store's catalog on every request and never cached;
// the schema may change between calls.
type TableDescriptor struct {
	Name       string         `json:"table"`
	Columns    []store.Column `json:"columns"`
	PrimaryKey string         `json:"primary_key,omitempty"`
}

// Column returns the descriptor for a named column, or nil.
func (t *TableDescriptor) Column(name string) *store.Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// AutoIncrementColumns returns the names of auto-generated columns.
func (t *TableDescriptor) AutoIncrementColumns() []string {
	var names []string
	for _, c := range t.Columns {
		if c.AutoIncrement {
			names = append(names, c.Name)
		}
	}
	return names
}

// Catalog reads table metadata straight from the backing store.
type Catalog struct {
	store *store.Store
}

func NewCatalog(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

// ListTables returns the names of all user tables.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	tables, err := c.store.Dialect.ListTables(ctx, c.store.DB)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// GetSchema returns the current schema of a table. The table name is
// sanitized before it reaches any catalog query. A missing table maps to
// store.ErrNotFound.
func (c *Catalog) GetSchema(ctx context.Context, table string) (*TableDescriptor, error) {
	name, err := SafeIdent(table)
	if err != nil {
		return nil, err
	}

	cols, err := c.store.Dialect.TableColumns(ctx, c.store.DB, name)
	if err != nil {
		return nil, fmt.Errorf("read columns for %s: %w", name, err)
	}
	if len(cols) == 0 {
		return nil, store.ErrNotFound
	}

	desc := &TableDescriptor{Name: name, Columns: cols}
	for _, col := range cols {
		if col.PrimaryKey {
			desc.PrimaryKey = col.Name
			break
		}
	}
	return desc, nil
}
