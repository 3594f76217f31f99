package dashboard

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"coverdesk/internal/dyndb"
	"coverdesk/internal/store"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	s := &store.Store{DB: db, Dialect: store.NewDialect("sqlite")}
	if err := s.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return NewModel(dyndb.NewRepo(s))
}

func TestModel_Roundtrip(t *testing.T) {
	ctx := context.Background()
	m := newModel(t)

	created, err := m.Create(ctx, &Dashboard{
		Name:        "Claims overview",
		Description: "ops",
		Config: Config{
			Widgets: []Widget{{Type: "kpi", Title: "Open claims", Table: "claims", Aggregation: "count"}},
			Filters: []Filter{{Table: "claims", Column: "status", Operator: "equals", Value: "open"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == nil {
		t.Fatal("expected an id")
	}

	got, err := m.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Claims overview" {
		t.Fatalf("unexpected name: %s", got.Name)
	}
	if len(got.Config.Widgets) != 1 || got.Config.Widgets[0].Aggregation != "count" {
		t.Fatalf("config did not roundtrip: %+v", got.Config)
	}
	if len(got.Config.Filters) != 1 || got.Config.Filters[0].Value != "open" {
		t.Fatalf("filters did not roundtrip: %+v", got.Config.Filters)
	}

	items, total, err := m.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("expected one dashboard, got total=%d len=%d", total, len(items))
	}

	got.Name = "Renamed"
	updated, err := m.Update(ctx, created.ID, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("update did not stick: %s", updated.Name)
	}

	if err := m.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Get(ctx, created.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
