package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coverdesk/internal/dyndb"
)

// Config is the persisted widget/filter configuration of a dashboard.
type Config struct {
	Widgets []Widget `json:"widgets"`
	Filters []Filter `json:"filters,omitempty"`
}

// Dashboard is one saved dashboard definition.
type Dashboard struct {
	ID          any    `json:"dashboard_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Config      Config `json:"config"`
	CreatedAt   any    `json:"created_at,omitempty"`
	UpdatedAt   any    `json:"updated_at,omitempty"`
}

// Model persists dashboards through the generic row repository; the config
// column holds the JSON-encoded widget/filter set.
type Model struct {
	repo *dyndb.Repo
}

func NewModel(repo *dyndb.Repo) *Model {
	return &Model{repo: repo}
}

func (m *Model) List(ctx context.Context, page, size int) ([]Dashboard, int64, error) {
	p, err := m.repo.ListRows(ctx, "dashboards", page, size)
	if err != nil {
		return nil, 0, err
	}
	out := make([]Dashboard, 0, len(p.Rows))
	for _, row := range p.Rows {
		d, err := fromRow(row)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *d)
	}
	return out, p.Total, nil
}

func (m *Model) Get(ctx context.Context, id any) (*Dashboard, error) {
	row, err := m.repo.FetchRow(ctx, "dashboards", "dashboard_id", id)
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (m *Model) Create(ctx context.Context, d *Dashboard) (*Dashboard, error) {
	cfg, err := json.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("encode dashboard config: %w", err)
	}
	_, row, err := m.repo.InsertRow(ctx, "dashboards", map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"config":      string(cfg),
	})
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (m *Model) Update(ctx context.Context, id any, d *Dashboard) (*Dashboard, error) {
	cfg, err := json.Marshal(d.Config)
	if err != nil {
		return nil, fmt.Errorf("encode dashboard config: %w", err)
	}
	row, err := m.repo.UpdateRow(ctx, "dashboards", "dashboard_id", id, map[string]any{
		"name":        d.Name,
		"description": d.Description,
		"config":      string(cfg),
		"updated_at":  time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (m *Model) Delete(ctx context.Context, id any) error {
	return m.repo.DeleteRow(ctx, "dashboards", "dashboard_id", id)
}

func fromRow(row map[string]any) (*Dashboard, error) {
	d := &Dashboard{
		ID:        row["dashboard_id"],
		CreatedAt: row["created_at"],
		UpdatedAt: row["updated_at"],
	}
	if s, ok := row["name"].(string); ok {
		d.Name = s
	}
	if s, ok := row["description"].(string); ok {
		d.Description = s
	}

	var raw []byte
	switch v := row["config"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d.Config); err != nil {
			return nil, fmt.Errorf("decode dashboard config: %w", err)
		}
	}
	return d, nil
}
