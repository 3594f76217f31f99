package store

import (
	"context"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) AutoIncrementClause() string { return "" }
func (d *SQLiteDialect) InlineAutoIncrementPK() bool { return true }
func (d *SQLiteDialect) LikeOperator() string        { return "LIKE" }
func (d *SQLiteDialect) SupportsReturning() bool     { return false }

func (d *SQLiteDialect) ColumnType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case t == "":
		return "TEXT"
	case t == "TINYINT(1)", t == "BOOLEAN", t == "BOOL":
		// stored as a 0/1 flag
		return "TINYINT(1)"
	case strings.HasPrefix(t, "TINYINT"), strings.HasPrefix(t, "INT"), strings.HasPrefix(t, "BIGINT"):
		return "INTEGER"
	case strings.HasPrefix(t, "DECIMAL"), strings.HasPrefix(t, "NUMERIC"),
		t == "FLOAT", t == "DOUBLE", t == "REAL":
		return "REAL"
	case t == "DATE", t == "DATETIME", t == "TIMESTAMP":
		// SQLite stores dates as TEXT; keep the declared type so the catalog
		// still reports the intended category for coercion.
		return t
	case t == "JSON":
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) ListTables(ctx context.Context, db Querier) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master
		 WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db Querier, table string) (bool, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

func (d *SQLiteDialect) TableColumns(ctx context.Context, db Querier, table string) ([]Column, error) {
	// table name reaches PRAGMA text directly; callers sanitize first, and
	// an unknown name simply yields zero rows
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	pkCount := 0
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		if pk > 0 {
			pkCount++
		}
		cols = append(cols, Column{
			Name:       name,
			Type:       colType,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// A single-column INTEGER primary key is a rowid alias and auto-generates.
	if pkCount == 1 {
		for i := range cols {
			if cols[i].PrimaryKey && strings.EqualFold(cols[i].Type, "INTEGER") {
				cols[i].AutoIncrement = true
			}
		}
	}
	return cols, nil
}

func (d *SQLiteDialect) BaseTablesSQL() string {
	return sqliteBaseTablesSQL
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const sqliteBaseTablesSQL = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id   INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name     TEXT NOT NULL,
    date_of_birth DATE,
    email         TEXT,
    phone_number  TEXT,
    address       TEXT
);
CREATE INDEX IF NOT EXISTS idx_customers_email ON customers (email);

CREATE TABLE IF NOT EXISTS agents (
    agent_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    full_name    TEXT NOT NULL,
    email        TEXT,
    phone_number TEXT
);
CREATE INDEX IF NOT EXISTS idx_agents_email ON agents (email);

CREATE TABLE IF NOT EXISTS policies (
    policy_id       INTEGER PRIMARY KEY AUTOINCREMENT,
    policy_type     TEXT,
    premium_amount  REAL DEFAULT 0,
    coverage_amount REAL,
    start_date      DATE,
    end_date        DATE,
    customer_name   TEXT,
    customer_id     INTEGER REFERENCES customers(customer_id) ON DELETE SET NULL,
    status          TEXT
);
CREATE INDEX IF NOT EXISTS idx_policies_customer_id ON policies (customer_id);

CREATE TABLE IF NOT EXISTS claims (
    claim_id     INTEGER PRIMARY KEY AUTOINCREMENT,
    policy_id    INTEGER NOT NULL REFERENCES policies(policy_id) ON DELETE CASCADE,
    claim_date   DATE,
    claim_amount REAL DEFAULT 0,
    status       TEXT,
    reason       TEXT
);
CREATE INDEX IF NOT EXISTS idx_claims_policy_id ON claims (policy_id);

CREATE TABLE IF NOT EXISTS dashboards (
    dashboard_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL,
    description  TEXT,
    config       TEXT,
    created_at   TEXT DEFAULT (datetime('now')),
    updated_at   TEXT DEFAULT (datetime('now'))
);
`

var _ Dialect = (*SQLiteDialect)(nil)
