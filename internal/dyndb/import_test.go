package dyndb

import (
	"context"
	"testing"
	"time"
)

func seedImportTable(t *testing.T) *Repo {
	t.Helper()
	s := newTestStore(t)
	ddl := NewDDL(s)
	err := ddl.CreateTable(context.Background(), "inventory", []ColumnSpec{
		{Name: "id", Type: "INT", PrimaryKey: true, AutoIncrement: true},
		{Name: "sku", Type: "VARCHAR(50)", Nullable: true},
		{Name: "qty", Type: "INT", Nullable: true},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return NewRepo(s)
}

func TestPreviewImport(t *testing.T) {
	ctx := context.Background()
	repo := seedImportTable(t)

	records := []map[string]any{
		{"sku": "A-1", "qty": "3", "color": "red"},
		{"sku": "A-2", "qty": "5", "color": "blue"},
	}
	p, err := repo.PreviewImport(ctx, "inventory", records, 1)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if p.Total != 2 || len(p.Rows) != 1 {
		t.Fatalf("expected total=2 with 1 sample row, got total=%d rows=%d", p.Total, len(p.Rows))
	}
	if len(p.Matching) != 2 {
		t.Fatalf("expected sku and qty to match, got %v", p.Matching)
	}
	if len(p.Extra) != 1 || p.Extra[0] != "color" {
		t.Fatalf("expected color flagged extra, got %v", p.Extra)
	}
	// id is auto-increment, so it must not be reported missing
	if len(p.Missing) != 0 {
		t.Fatalf("expected no missing columns, got %v", p.Missing)
	}
}

func TestImportRecords_InsertUpdateSkip(t *testing.T) {
	ctx := context.Background()
	repo := seedImportTable(t)

	first := []map[string]any{
		{"sku": "A-1", "qty": "3"},
		{"sku": "A-2", "qty": "5"},
	}
	res, err := repo.ImportRecords(ctx, "inventory", first)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("expected 2 inserts, got %+v", res)
	}
	id1 := res.Report[0].ID

	second := []map[string]any{
		{"id": id1, "sku": "A-1", "qty": "3"},  // identical: skip
		{"id": id1, "sku": "A-1", "qty": "9"},  // changed: update
		{"sku": "A-3", "qty": "1", "junk": "x"}, // new row, unknown field dropped
	}
	res, err = repo.ImportRecords(ctx, "inventory", second)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Skipped != 1 || res.Updated != 1 || res.Inserted != 1 {
		t.Fatalf("expected skip/update/insert, got %+v", res.Report)
	}

	row, err := repo.FetchRow(ctx, "inventory", "id", id1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if row["qty"] != int64(9) {
		t.Fatalf("expected qty 9 after update, got %v", row["qty"])
	}
}

func TestImportRecords_DateLayoutsStayIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ddl := NewDDL(s)
	err := ddl.CreateTable(ctx, "shipments", []ColumnSpec{
		{Name: "id", Type: "INT", PrimaryKey: true, AutoIncrement: true},
		{Name: "shipped", Type: "DATE", Nullable: true},
	})
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	repo := NewRepo(s)

	// slash-format input is stored normalized; a re-import of the raw file
	// must still compare equal and skip
	records := []map[string]any{
		{"id": "1", "shipped": "2024/01/02"},
	}
	res, err := repo.ImportRecords(ctx, "shipments", records)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("expected insert, got %+v", res.Report)
	}
	row, err := repo.FetchRow(ctx, "shipments", "id", 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	shipped := row["shipped"]
	if tv, ok := shipped.(time.Time); ok {
		// the sqlite driver scans DATE-declared columns into time.Time
		shipped = tv.Format("2006-01-02")
	}
	if shipped != "2024-01-02" {
		t.Fatalf("expected normalized stored date, got %v", row["shipped"])
	}

	res, err = repo.ImportRecords(ctx, "shipments", records)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Skipped != 1 || res.Updated != 0 {
		t.Fatalf("expected skip on re-import, got %+v", res.Report)
	}
}

func TestImportRecords_RowWithNoMatchingFields(t *testing.T) {
	ctx := context.Background()
	repo := seedImportTable(t)

	res, err := repo.ImportRecords(ctx, "inventory", []map[string]any{
		{"nothing": "here"},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Errored != 1 || res.Report[0].Status != "error" {
		t.Fatalf("expected an error entry, got %+v", res.Report)
	}
}
