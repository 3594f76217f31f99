package dyndb

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"coverdesk/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &store.Store{DB: db, Dialect: store.NewDialect("sqlite")}
}

func TestCreateTableThenGetSchema(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ddl := NewDDL(s)

	cols := []ColumnSpec{
		{Name: "id", Type: "INT", PrimaryKey: true, AutoIncrement: true},
		{Name: "amount", Type: "DECIMAL(13,2)", Nullable: true},
		{Name: "category", Type: "VARCHAR(50)", Nullable: true},
		{Name: "created", Type: "DATE", Nullable: true},
	}
	if err := ddl.CreateTable(ctx, "things", cols); err != nil {
		t.Fatalf("create table: %v", err)
	}

	schema, err := NewCatalog(s).GetSchema(ctx, "things")
	if err != nil {
		t.Fatalf("get schema: %v", err)
	}
	if len(schema.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(schema.Columns))
	}
	if schema.PrimaryKey != "id" {
		t.Fatalf("expected primary key id, got %q", schema.PrimaryKey)
	}
	idCol := schema.Column("id")
	if idCol == nil || !idCol.AutoIncrement {
		t.Fatalf("expected id to be auto-increment, got %+v", idCol)
	}

	// create-if-absent: a second create is a no-op
	if err := ddl.CreateTable(ctx, "things", cols); err != nil {
		t.Fatalf("repeated create table: %v", err)
	}
}

func TestGetSchema_MissingTable(t *testing.T) {
	s := newTestStore(t)
	_, err := NewCatalog(s).GetSchema(context.Background(), "no_such_table")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepo_CRUDRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ddl := NewDDL(s)
	repo := NewRepo(s)

	err := ddl.CreateTable(ctx, "things", []ColumnSpec{
		{Name: "id", Type: "INT", PrimaryKey: true, AutoIncrement: true},
		{Name: "amount", Type: "DECIMAL(13,2)", Nullable: true},
		{Name: "category", Type: "VARCHAR(50)", Nullable: true},
		{Name: "created", Type: "DATE", Nullable: true},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	id, row, err := repo.InsertRow(ctx, "things", map[string]any{
		"amount":   10.5,
		"category": "A",
		"created":  "2024/01/02",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == nil {
		t.Fatal("expected a generated id")
	}
	if row == nil {
		t.Fatal("expected the inserted row back")
	}
	created := row["created"]
	if tv, ok := created.(time.Time); ok {
		// the sqlite driver scans DATE-declared columns into time.Time
		created = tv.Format("2006-01-02")
	}
	if created != "2024-01-02" {
		t.Fatalf("expected normalized date, got %v", row["created"])
	}

	page, err := repo.ListRows(ctx, "things", 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Rows) != 1 {
		t.Fatalf("expected 1 row, got total=%d len=%d", page.Total, len(page.Rows))
	}

	updated, err := repo.UpdateRow(ctx, "things", "id", id, map[string]any{"category": "B"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated["category"] != "B" {
		t.Fatalf("expected category B, got %v", updated["category"])
	}

	if err := repo.DeleteRow(ctx, "things", "id", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FetchRow(ctx, "things", "id", id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// deleting again stays silent
	if err := repo.DeleteRow(ctx, "things", "id", id); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}
}

func TestRepo_UpdateWithOnlyKeyColumn(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ddl := NewDDL(s)
	repo := NewRepo(s)

	err := ddl.CreateTable(ctx, "things", []ColumnSpec{
		{Name: "id", Type: "INT", PrimaryKey: true, AutoIncrement: true},
		{Name: "category", Type: "VARCHAR(50)", Nullable: true},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	id, _, err := repo.InsertRow(ctx, "things", map[string]any{"category": "A"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err = repo.UpdateRow(ctx, "things", "id", id, map[string]any{"id": 99})
	if !errors.Is(err, ErrNoUpdatableColumns) {
		t.Fatalf("expected ErrNoUpdatableColumns, got %v", err)
	}
}

// Bad identifiers must fail before any statement reaches the database. The
// mock has no expectations: had SQL been issued, the error would be the
// mock's "not expected" failure rather than InvalidIdentifierError.
func TestRepo_BadIdentifierIssuesNoSQL(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	s := &store.Store{DB: db, Dialect: store.NewDialect("sqlite")}
	repo := NewRepo(s)
	ddl := NewDDL(s)

	var identErr *InvalidIdentifierError

	if _, err := repo.ListRows(ctx, "users; DROP TABLE users", 1, 10); !errors.As(err, &identErr) {
		t.Fatalf("ListRows: expected InvalidIdentifierError, got %v", err)
	}
	if _, _, err := repo.InsertRow(ctx, "bad table", map[string]any{"a": 1}); !errors.As(err, &identErr) {
		t.Fatalf("InsertRow: expected InvalidIdentifierError, got %v", err)
	}
	if _, err := repo.UpdateRow(ctx, "t", "bad col", 1, map[string]any{"a": 1}); !errors.As(err, &identErr) {
		t.Fatalf("UpdateRow: expected InvalidIdentifierError, got %v", err)
	}
	if err := repo.DeleteRow(ctx, "t", "col--", 1); !errors.As(err, &identErr) {
		t.Fatalf("DeleteRow: expected InvalidIdentifierError, got %v", err)
	}
	if err := ddl.CreateTable(ctx, "t", []ColumnSpec{{Name: "evil()", Type: "INT"}}); !errors.As(err, &identErr) {
		t.Fatalf("CreateTable: expected InvalidIdentifierError, got %v", err)
	}
	if err := ddl.DropTable(ctx, "t; --"); !errors.As(err, &identErr) {
		t.Fatalf("DropTable: expected InvalidIdentifierError, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected SQL issued: %v", err)
	}
}
