package store

import (
	"context"
	"fmt"
)

// Column is an immutable snapshot of one column read from the backing store's
// catalog. Descriptors are read fresh on every request; the schema may change
// between calls.
type Column struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	PrimaryKey    bool   `json:"primary_key"`
	AutoIncrement bool   `json:"auto_increment"`
}

// Dialect abstracts database-specific SQL generation and catalog access.
type Dialect interface {
	// Name returns "postgres" or "sqlite".
	Name() string

	// DriverName returns the database/sql driver name ("pgx" or "sqlite").
	DriverName() string

	// Placeholder returns the parameter placeholder for the given 1-based index.
	Placeholder(index int) string

	// NewParamBuilder creates a dialect-aware parameter builder. Values bound
	// through the builder are never concatenated into statement text.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a caller-declared column type (VARCHAR(255), INT,
	// DECIMAL(13,2), DATE, DATETIME, TINYINT(1), JSON, ...) to the DDL type
	// this database accepts.
	ColumnType(declared string) string

	// AutoIncrementClause returns the per-column DDL fragment for generated
	// keys, or empty string when the dialect expresses it differently.
	AutoIncrementClause() string

	// InlineAutoIncrementPK reports whether a single-column integer primary
	// key must be declared inline on the column (SQLite) instead of via a
	// table-level PRIMARY KEY clause.
	InlineAutoIncrementPK() bool

	// LikeOperator returns the case-insensitive substring-match operator.
	LikeOperator() string

	// SupportsReturning reports whether INSERT ... RETURNING is available for
	// reading back generated keys.
	SupportsReturning() bool

	// ListTables returns the names of all user tables.
	ListTables(ctx context.Context, db Querier) ([]string, error)

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, db Querier, table string) (bool, error)

	// TableColumns returns the ordered column snapshot for a table, with
	// primary-key membership and auto-increment detection. Returns an empty
	// slice when the table does not exist.
	TableColumns(ctx context.Context, db Querier, table string) ([]Column, error)

	// BaseTablesSQL returns the DDL for the built-in domain tables.
	BaseTablesSQL() string

	// MapError maps a driver error to a well-known sentinel error.
	MapError(err error) error
}

// ParamBuilder accumulates query parameters and generates dialect-specific
// placeholders. This is the only channel through which user-supplied values
// reach a statement.
type ParamBuilder interface {
	// Add appends a value and returns its placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	default:
		return &PostgresDialect{}
	}
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
func (p *sqliteParamBuilder) Count() int    { return p.n }
