package dyndb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"coverdesk/internal/store"
)

// ErrNoUpdatableColumns is returned when an update payload contains nothing
// but the key column.
var ErrNoUpdatableColumns = errors.New("no updatable columns")

// Page is one page of rows from a table plus the table's total row count.
type Page struct {
	Rows     []map[string]any `json:"data"`
	Page     int              `json:"page"`
	PageSize int              `json:"limit"`
	Total    int64            `json:"total"`
}

// Repo performs typed CRUD against any named table. Identifiers are
// sanitized and concatenated into statement text; values only ever travel
// through the dialect's parameter builder.
type Repo struct {
	store   *store.Store
	catalog *Catalog
}

func NewRepo(s *store.Store) *Repo {
	return &Repo{store: s, catalog: NewCatalog(s)}
}

// Catalog exposes the repo's schema reader.
func (r *Repo) Catalog() *Catalog {
	return r.catalog
}

// ListRows returns one page of rows in backing-store default order, plus the
// total count. Page and size are clamped to at least 1.
func (r *Repo) ListRows(ctx context.Context, table string, page, size int) (*Page, error) {
	return r.ListRowsOrdered(ctx, table, "", page, size)
}

// ListRowsOrdered is ListRows with a descending sort on the given column.
// An empty column keeps the backing store's default order.
func (r *Repo) ListRowsOrdered(ctx context.Context, table, orderCol string, page, size int) (*Page, error) {
	name, err := SafeIdent(table)
	if err != nil {
		return nil, err
	}
	order := ""
	if orderCol != "" {
		col, err := SafeIdent(orderCol)
		if err != nil {
			return nil, err
		}
		order = " ORDER BY " + col + " DESC"
	}
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}

	countRow, err := store.QueryRow(ctx, r.store.DB, "SELECT COUNT(*) AS total FROM "+name)
	if err != nil {
		return nil, fmt.Errorf("count %s: %w", name, err)
	}
	total := toInt64(countRow["total"])

	pb := r.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT * FROM %s%s LIMIT %s OFFSET %s",
		name, order, pb.Add(size), pb.Add((page-1)*size))
	rows, err := store.QueryRows(ctx, r.store.DB, sql, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	return &Page{Rows: rows, Page: page, PageSize: size, Total: total}, nil
}

// InsertRow coerces values per the table's current schema and issues a
// parameterized insert. It returns the generated key (nil when the table has
// none) and the freshly read row.
func (r *Repo) InsertRow(ctx context.Context, table string, data map[string]any) (any, map[string]any, error) {
	name, err := SafeIdent(table)
	if err != nil {
		return nil, nil, err
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("insert into %s: no data", name)
	}

	schema, err := r.catalog.GetSchema(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	cols := make([]string, 0, len(data))
	for k := range data {
		col, err := SafeIdent(k)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, col)
	}
	// deterministic statement text
	sort.Strings(cols)

	pb := r.store.Dialect.NewParamBuilder()
	placeholders := make([]string, len(cols))
	for i, col := range cols {
		v := data[col]
		if cd := schema.Column(col); cd != nil {
			coerced, err := CoerceValue(*cd, v)
			if err != nil {
				return nil, nil, err
			}
			v = coerced
		}
		placeholders[i] = pb.Add(v)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	var newID any
	pk := schema.PrimaryKey
	pkCol := schema.Column(pk)
	generated := pkCol != nil && pkCol.AutoIncrement

	if generated && r.store.Dialect.SupportsReturning() {
		var id any
		row := r.store.DB.QueryRowContext(ctx, sql+" RETURNING "+pk, pb.Params()...)
		if err := row.Scan(&id); err != nil {
			return nil, nil, fmt.Errorf("insert into %s: %w", name, r.store.Dialect.MapError(err))
		}
		newID = id
	} else {
		res, err := r.store.DB.ExecContext(ctx, sql, pb.Params()...)
		if err != nil {
			return nil, nil, fmt.Errorf("insert into %s: %w", name, r.store.Dialect.MapError(err))
		}
		if generated {
			if id, err := res.LastInsertId(); err == nil {
				newID = id
			}
		}
	}

	// read back the created row when it is addressable by key
	keyVal := newID
	if keyVal == nil && pk != "" {
		keyVal = data[pk]
	}
	if pk == "" || keyVal == nil {
		return newID, nil, nil
	}

	row, err := r.fetchByKey(ctx, name, pk, keyVal)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return newID, nil, err
	}
	return newID, row, nil
}

// UpdateRow updates one row addressed by key column and value. The key
// column is silently dropped from the update set; keys are not mutable
// through this path.
func (r *Repo) UpdateRow(ctx context.Context, table, keyCol string, keyVal any, data map[string]any) (map[string]any, error) {
	name, err := SafeIdent(table)
	if err != nil {
		return nil, err
	}
	key, err := SafeIdent(keyCol)
	if err != nil {
		return nil, err
	}

	schema, err := r.catalog.GetSchema(ctx, name)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(data))
	for k := range data {
		col, err := SafeIdent(k)
		if err != nil {
			return nil, err
		}
		if col == key {
			continue
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, ErrNoUpdatableColumns
	}
	sort.Strings(cols)

	pb := r.store.Dialect.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, col := range cols {
		v := data[col]
		if cd := schema.Column(col); cd != nil {
			coerced, err := CoerceValue(*cd, v)
			if err != nil {
				return nil, err
			}
			v = coerced
		}
		sets[i] = col + " = " + pb.Add(v)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		name, strings.Join(sets, ", "), key, pb.Add(keyVal))
	if _, err := store.Exec(ctx, r.store.DB, sql, pb.Params()...); err != nil {
		return nil, fmt.Errorf("update %s: %w", name, r.store.Dialect.MapError(err))
	}

	row, err := r.fetchByKey(ctx, name, key, keyVal)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// DeleteRow removes one row by key. Deleting a missing row is not an error.
func (r *Repo) DeleteRow(ctx context.Context, table, keyCol string, keyVal any) error {
	name, err := SafeIdent(table)
	if err != nil {
		return err
	}
	key, err := SafeIdent(keyCol)
	if err != nil {
		return err
	}

	pb := r.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", name, key, pb.Add(keyVal))
	if _, err := store.Exec(ctx, r.store.DB, sql, pb.Params()...); err != nil {
		return fmt.Errorf("delete from %s: %w", name, err)
	}
	return nil
}

// FetchRow reads one row by key column and value.
func (r *Repo) FetchRow(ctx context.Context, table, keyCol string, keyVal any) (map[string]any, error) {
	name, err := SafeIdent(table)
	if err != nil {
		return nil, err
	}
	key, err := SafeIdent(keyCol)
	if err != nil {
		return nil, err
	}
	return r.fetchByKey(ctx, name, key, keyVal)
}

func (r *Repo) fetchByKey(ctx context.Context, table, key string, val any) (map[string]any, error) {
	pb := r.store.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1", table, key, pb.Add(val))
	return store.QueryRow(ctx, r.store.DB, sql, pb.Params()...)
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		var n int64
		fmt.Sscanf(val, "%d", &n)
		return n
	default:
		return 0
	}
}
