package store

import (
	"context"
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) AutoIncrementClause() string   { return "GENERATED BY DEFAULT AS IDENTITY" }
func (d *PostgresDialect) InlineAutoIncrementPK() bool   { return false }
func (d *PostgresDialect) LikeOperator() string          { return "ILIKE" }
func (d *PostgresDialect) SupportsReturning() bool       { return true }

// ColumnType normalizes caller-declared types to PostgreSQL DDL types.
// Declared types follow the common spreadsheet/MySQL vocabulary operators
// tend to write (VARCHAR(n), INT, DECIMAL(p,s), DATETIME, TINYINT(1)).
func (d *PostgresDialect) ColumnType(declared string) string {
	t := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case t == "":
		return "TEXT"
	case t == "TINYINT(1)", t == "BOOLEAN", t == "BOOL":
		return "BOOLEAN"
	case strings.HasPrefix(t, "TINYINT"), t == "INT", t == "INTEGER", strings.HasPrefix(t, "INT("):
		return "INTEGER"
	case strings.HasPrefix(t, "BIGINT"):
		return "BIGINT"
	case strings.HasPrefix(t, "DECIMAL"), strings.HasPrefix(t, "NUMERIC"):
		return strings.Replace(t, "DECIMAL", "NUMERIC", 1)
	case t == "FLOAT", t == "DOUBLE", t == "REAL":
		return "DOUBLE PRECISION"
	case t == "DATETIME", t == "TIMESTAMP":
		return "TIMESTAMP"
	case t == "DATE":
		return "DATE"
	case t == "JSON":
		return "JSONB"
	case strings.HasPrefix(t, "VARCHAR"), strings.HasPrefix(t, "CHAR"):
		return t
	case t == "TEXT":
		return "TEXT"
	default:
		return t
	}
}

func (d *PostgresDialect) ListTables(ctx context.Context, db Querier) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
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

func (d *PostgresDialect) TableExists(ctx context.Context, db Querier, table string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		table,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) TableColumns(ctx context.Context, db Querier, table string) ([]Column, error) {
	pk := make(map[string]bool)
	pkRows, err := db.QueryContext(ctx,
		`SELECT k.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage k
		   ON k.constraint_name = tc.constraint_name AND k.table_name = tc.table_name
		 WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`,
		table)
	if err != nil {
		return nil, err
	}
	for pkRows.Next() {
		var name string
		if err := pkRows.Scan(&name); err != nil {
			pkRows.Close()
			return nil, err
		}
		pk[name] = true
	}
	pkRows.Close()
	if err := pkRows.Err(); err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, is_identity, COALESCE(column_default, '')
		 FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`,
		table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, dataType, nullable, identity, dflt string
		if err := rows.Scan(&name, &dataType, &nullable, &identity, &dflt); err != nil {
			return nil, err
		}
		cols = append(cols, Column{
			Name:          name,
			Type:          dataType,
			Nullable:      nullable == "YES",
			PrimaryKey:    pk[name],
			AutoIncrement: identity == "YES" || strings.HasPrefix(dflt, "nextval("),
		})
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) BaseTablesSQL() string {
	return pgBaseTablesSQL
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// pgx/stdlib error text carries the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

const pgBaseTablesSQL = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id   BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    full_name     TEXT NOT NULL,
    date_of_birth DATE,
    email         TEXT,
    phone_number  TEXT,
    address       TEXT
);
CREATE INDEX IF NOT EXISTS idx_customers_email ON customers (email);

CREATE TABLE IF NOT EXISTS agents (
    agent_id     BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    full_name    TEXT NOT NULL,
    email        TEXT,
    phone_number TEXT
);
CREATE INDEX IF NOT EXISTS idx_agents_email ON agents (email);

CREATE TABLE IF NOT EXISTS policies (
    policy_id       BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    policy_type     TEXT,
    premium_amount  NUMERIC(13,2) DEFAULT 0.00,
    coverage_amount NUMERIC(15,2),
    start_date      DATE,
    end_date        DATE,
    customer_name   TEXT,
    customer_id     BIGINT REFERENCES customers(customer_id) ON DELETE SET NULL,
    status          TEXT
);
CREATE INDEX IF NOT EXISTS idx_policies_customer_id ON policies (customer_id);

CREATE TABLE IF NOT EXISTS claims (
    claim_id     BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    policy_id    BIGINT NOT NULL REFERENCES policies(policy_id) ON DELETE CASCADE,
    claim_date   DATE,
    claim_amount NUMERIC(15,2) DEFAULT 0.00,
    status       TEXT,
    reason       TEXT
);
CREATE INDEX IF NOT EXISTS idx_claims_policy_id ON claims (policy_id);

CREATE TABLE IF NOT EXISTS dashboards (
    dashboard_id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
    name         TEXT NOT NULL,
    description  TEXT,
    config       JSONB,
    created_at   TIMESTAMPTZ DEFAULT NOW(),
    updated_at   TIMESTAMPTZ DEFAULT NOW()
);
`

var _ Dialect = (*PostgresDialect)(nil)
