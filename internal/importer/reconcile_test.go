package importer

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"coverdesk/internal/dyndb"
	"coverdesk/internal/store"
	"coverdesk/internal/tabfile"
)

func newTestEngine(t *testing.T) (*Engine, *dyndb.Repo) {
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

	s := &store.Store{DB: db, Dialect: store.NewDialect("sqlite")}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	repo := dyndb.NewRepo(s)
	return NewEngine(repo, DefaultRegistry(), 0), repo
}

func TestRun_UnknownEntity(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Run(context.Background(), "unicorns", nil); err == nil {
		t.Fatal("expected error for unknown entity")
	}
}

func TestRun_CustomersIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	records := []tabfile.Record{
		{"name": "Ada Lovelace", "email": "ada@example.com", "dob": "1815-12-10"},
		{"full_name": "Grace Hopper", "email": "Grace@Example.com", "phone": "555-0100"},
	}

	res, err := engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 || res.Skipped != 0 {
		t.Fatalf("first run: inserted=%d updated=%d skipped=%d", res.Inserted, res.Updated, res.Skipped)
	}
	if res.Total != 2 || len(res.Report) != 2 {
		t.Fatalf("first run: total=%d report=%d", res.Total, len(res.Report))
	}
	if res.RunID == "" {
		t.Fatal("expected a run id")
	}
	if res.Report[0].Row != 1 || res.Report[1].Row != 2 {
		t.Fatalf("report rows not 1-based in input order: %+v", res.Report)
	}

	// same file again: everything skips on the natural key
	res, err = engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 || res.Skipped != 2 {
		t.Fatalf("second run: inserted=%d updated=%d skipped=%d", res.Inserted, res.Updated, res.Skipped)
	}

	// one changed field: that record updates, the other still skips
	records[0]["name"] = "Ada King"
	res, err = engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if res.Updated != 1 || res.Skipped != 1 {
		t.Fatalf("third run: updated=%d skipped=%d", res.Updated, res.Skipped)
	}
	if res.Report[0].Status != StatusUpdated || res.Report[0].ID == nil {
		t.Fatalf("expected updated entry with id, got %+v", res.Report[0])
	}
}

func TestRun_SlashFormatDatesStayIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	// dates in every accepted input layout; stored normalized to YYYY-MM-DD
	records := []tabfile.Record{
		{"name": "Ada Lovelace", "email": "ada@example.com", "dob": "03/15/2024"},
		{"name": "Grace Hopper", "email": "grace@example.com", "dob": "2024/03/15"},
	}
	res, err := engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Inserted != 2 {
		t.Fatalf("first run: expected 2 inserts, got %+v", res.Report)
	}
	row, err := repo.FetchRow(ctx, "customers", "customer_id", res.Report[0].ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	dob := row["date_of_birth"]
	if tv, ok := dob.(time.Time); ok {
		// the sqlite driver scans DATE-declared columns into time.Time
		dob = tv.Format("2006-01-02")
	}
	if dob != "2024-03-15" {
		t.Fatalf("expected normalized stored date, got %v", row["date_of_birth"])
	}

	// identical file again: raw slash dates must compare equal to the
	// normalized stored values, not report updates forever
	res, err = engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Skipped != 2 || res.Updated != 0 {
		t.Fatalf("second run: skipped=%d updated=%d, want all skipped", res.Skipped, res.Updated)
	}
}

func TestRun_InvalidRowsDoNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	records := []tabfile.Record{
		{"email": "no-name@example.com"},                                // missing required full_name
		{"name": "Ok Person", "email": "ok@example.com"},                // fine
		{"name": "Bad Mail", "email": "not-an-email"},                   // invalid email
	}
	res, err := engine.Run(ctx, "customers", records)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Inserted != 1 || res.Invalid != 2 {
		t.Fatalf("inserted=%d invalid=%d", res.Inserted, res.Invalid)
	}
	if res.Report[0].Status != StatusInvalid || len(res.Report[0].Errors) == 0 {
		t.Fatalf("expected invalid entry with errors, got %+v", res.Report[0])
	}
	if res.Report[1].Status != StatusInserted {
		t.Fatalf("expected middle row inserted, got %+v", res.Report[1])
	}
}

func TestRun_PolicyCheckExpressions(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	records := []tabfile.Record{
		{"type": "auto", "premium": "-5", "customer_name": "Ada"},
		{"type": "auto", "premium": "abc"},
	}
	res, err := engine.Run(ctx, "policies", records)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Invalid != 2 {
		t.Fatalf("expected 2 invalid rows, got %d", res.Invalid)
	}
	if res.Report[0].Errors[0] != "premium_amount must be non-negative" {
		t.Fatalf("unexpected check message: %v", res.Report[0].Errors)
	}
	if res.Report[1].Errors[0] != "premium_amount must be numeric" {
		t.Fatalf("unexpected numeric message: %v", res.Report[1].Errors)
	}
}

func TestRun_PolicyResolvesCustomerByName(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	custID, _, err := repo.InsertRow(ctx, "customers", map[string]any{
		"full_name": "Ada Lovelace",
		"email":     "ada@example.com",
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}

	res, err := engine.Run(ctx, "policies", []tabfile.Record{
		{"type": "auto", "premium": "100", "customer_name": "ada lovelace"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("expected insert, got %+v", res)
	}

	row, err := repo.FetchRow(ctx, "policies", "policy_id", res.Report[0].ID)
	if err != nil {
		t.Fatalf("fetch policy: %v", err)
	}
	if row["customer_id"] != custID {
		t.Fatalf("expected customer_id %v, got %v", custID, row["customer_id"])
	}
}

func TestRun_PolicyPlaceholderCustomerCreatedOnce(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	records := []tabfile.Record{
		{"type": "auto", "premium": "100", "customer_name": "Newco Inc"},
		{"type": "home", "premium": "200", "customer_name": "Newco Inc"},
	}
	if _, err := engine.Run(ctx, "policies", records); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// re-run: the placeholder from the first run must be found, not recreated
	if _, err := engine.Run(ctx, "policies", records); err != nil {
		t.Fatalf("second run: %v", err)
	}

	page, err := repo.ListRows(ctx, "customers", 1, 100)
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected exactly one placeholder customer, got %d", page.Total)
	}
	if page.Rows[0]["full_name"] != "Newco Inc" {
		t.Fatalf("unexpected placeholder: %v", page.Rows[0])
	}
}

func TestRun_PolicyDanglingCustomerIDNulledOut(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	res, err := engine.Run(ctx, "policies", []tabfile.Record{
		{"type": "auto", "premium": "100", "customer_id": "999"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("expected insert, got %+v", res.Report)
	}
	row, err := repo.FetchRow(ctx, "policies", "policy_id", res.Report[0].ID)
	if err != nil {
		t.Fatalf("fetch policy: %v", err)
	}
	if row["customer_id"] != nil {
		t.Fatalf("expected nulled customer_id, got %v", row["customer_id"])
	}
}

func TestRun_ClaimAlwaysCreatesPlaceholderPolicy(t *testing.T) {
	ctx := context.Background()
	engine, repo := newTestEngine(t)

	res, err := engine.Run(ctx, "claims", []tabfile.Record{
		{"claim_date": "2024-01-01", "amount": "500"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("expected insert, got %+v", res.Report)
	}

	claim, err := repo.FetchRow(ctx, "claims", "claim_id", res.Report[0].ID)
	if err != nil {
		t.Fatalf("fetch claim: %v", err)
	}
	if claim["policy_id"] == nil {
		t.Fatal("expected a placeholder policy_id")
	}
	policy, err := repo.FetchRow(ctx, "policies", "policy_id", claim["policy_id"])
	if err != nil {
		t.Fatalf("fetch placeholder policy: %v", err)
	}
	if policy["policy_type"] != "imported" {
		t.Fatalf("expected placeholder policy_type imported, got %v", policy["policy_type"])
	}
}

func TestRun_PolicySuppliedKeyIsPreserved(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine(t)

	records := []tabfile.Record{
		{"policy_id": "42", "type": "auto", "premium": "100"},
	}
	res, err := engine.Run(ctx, "policies", records)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("expected insert, got %+v", res.Report)
	}

	res, err = engine.Run(ctx, "policies", records)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Skipped != 1 || res.Inserted != 0 {
		t.Fatalf("expected skip on re-import, got %+v", res.Report)
	}
}
