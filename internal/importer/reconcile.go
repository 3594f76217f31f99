package importer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"coverdesk/internal/dyndb"
	"coverdesk/internal/tabfile"
)

// Status classifies the outcome of one imported row.
type Status string

const (
	StatusInserted Status = "inserted"
	StatusUpdated  Status = "updated"
	StatusSkipped  Status = "skipped"
	StatusInvalid  Status = "invalid"
	StatusError    Status = "error"
)

// ReportEntry records the outcome of a single row, 1-based in input order.
type ReportEntry struct {
	Row    int            `json:"row"`
	Status Status         `json:"status"`
	ID     any            `json:"id,omitempty"`
	Errors []string       `json:"errors,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Result is the outcome of one import run.
type Result struct {
	RunID    string        `json:"run_id"`
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Invalid  int           `json:"invalid"`
	Errored  int           `json:"errored"`
	Total    int           `json:"total"`
	Report   []ReportEntry `json:"report"`
}

// Engine runs imports. It loads the entity's existing rows once per run and
// reconciles each incoming record against them, so a re-import of the same
// file is a no-op.
type Engine struct {
	repo          *dyndb.Repo
	registry      Registry
	existingLimit int
}

func NewEngine(repo *dyndb.Repo, registry Registry, existingLimit int) *Engine {
	if existingLimit < 1 {
		existingLimit = 1_000_000
	}
	return &Engine{repo: repo, registry: registry, existingLimit: existingLimit}
}

// Registry exposes the engine's entity configurations.
func (e *Engine) Registry() Registry {
	return e.registry
}

// Run reconciles records against the named entity's table. A failure to load
// existing state fails the run; failures on individual rows do not.
func (e *Engine) Run(ctx context.Context, entity string, records []tabfile.Record) (*Result, error) {
	cfg, ok := e.registry[entity]
	if !ok {
		return nil, fmt.Errorf("unknown import entity %q", entity)
	}

	existing, err := e.loadAll(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]map[string]any, len(existing))
	byNatural := make(map[string]map[string]any, len(existing))
	for _, row := range existing {
		indexRow(cfg, byID, byNatural, row)
	}

	var parents *parentIndex
	if cfg.Ref != nil {
		parents, err = e.loadParents(ctx, cfg.Ref)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{
		RunID:  uuid.New().String(),
		Total:  len(records),
		Report: make([]ReportEntry, 0, len(records)),
	}
	for i, rec := range records {
		entry := e.reconcileRecord(ctx, cfg, parents, byID, byNatural, i+1, rec)
		switch entry.Status {
		case StatusInserted:
			res.Inserted++
		case StatusUpdated:
			res.Updated++
		case StatusSkipped:
			res.Skipped++
		case StatusInvalid:
			res.Invalid++
		case StatusError:
			res.Errored++
		}
		res.Report = append(res.Report, entry)
	}
	return res, nil
}

func (e *Engine) reconcileRecord(ctx context.Context, cfg *EntityConfig, parents *parentIndex, byID, byNatural map[string]map[string]any, rowNum int, rec tabfile.Record) (entry ReportEntry) {
	entry = ReportEntry{Row: rowNum}
	defer func() {
		if r := recover(); r != nil {
			entry.Status = StatusError
			entry.Reason = fmt.Sprintf("row failed: %v", r)
		}
	}()

	payload, errs := Validate(cfg, rec)
	entry.Data = payload
	if len(errs) > 0 {
		entry.Status = StatusInvalid
		entry.Errors = errs
		return entry
	}

	if cfg.Ref != nil {
		e.resolveRef(ctx, cfg.Ref, parents, payload)
	}

	suppliedID := firstValue(rec, cfg.IDColumn, "id")
	var found map[string]any
	if suppliedID != nil {
		found = byID[compareString(suppliedID)]
	}
	if found == nil && cfg.NaturalKey != "" {
		if nk := payload[cfg.NaturalKey]; nk != nil {
			found = byNatural[strings.ToLower(compareString(nk))]
		}
	}

	if found != nil {
		entry.ID = found[cfg.IDColumn]
		if sameRecord(cfg, found, payload) {
			entry.Status = StatusSkipped
			entry.Reason = "no changes"
			return entry
		}
		row, err := e.repo.UpdateRow(ctx, cfg.Table, cfg.IDColumn, found[cfg.IDColumn], payload)
		if err != nil {
			entry.Status = StatusError
			entry.Reason = err.Error()
			return entry
		}
		indexRow(cfg, byID, byNatural, row)
		entry.Status = StatusUpdated
		return entry
	}

	// a caller-supplied key is preserved so a re-import finds this row again
	if suppliedID != nil {
		payload[cfg.IDColumn] = suppliedID
	}
	id, row, err := e.repo.InsertRow(ctx, cfg.Table, payload)
	if err != nil {
		entry.Status = StatusError
		entry.Reason = err.Error()
		return entry
	}
	if id == nil && row != nil {
		id = row[cfg.IDColumn]
	}
	entry.ID = id
	// index the fresh row so a duplicate later in the same file updates
	// instead of inserting twice
	indexRow(cfg, byID, byNatural, row)
	entry.Status = StatusInserted
	return entry
}

func indexRow(cfg *EntityConfig, byID, byNatural map[string]map[string]any, row map[string]any) {
	if row == nil {
		return
	}
	if id := row[cfg.IDColumn]; id != nil {
		byID[compareString(id)] = row
	}
	if cfg.NaturalKey != "" {
		if nk := row[cfg.NaturalKey]; nk != nil {
			byNatural[strings.ToLower(compareString(nk))] = row
		}
	}
}

func (e *Engine) loadAll(ctx context.Context, table string) ([]map[string]any, error) {
	page, err := e.repo.ListRows(ctx, table, 1, e.existingLimit)
	if err != nil {
		return nil, fmt.Errorf("load existing %s: %w", table, err)
	}
	return page.Rows, nil
}

// parentIndex is the referenced entity's rows keyed by id and, when
// configured, by lowercased name.
type parentIndex struct {
	cfg    *EntityConfig
	byID   map[string]map[string]any
	byName map[string]map[string]any
}

func (e *Engine) loadParents(ctx context.Context, ref *RefConfig) (*parentIndex, error) {
	pcfg, ok := e.registry[ref.Entity]
	if !ok {
		return nil, fmt.Errorf("unknown parent entity %q", ref.Entity)
	}
	rows, err := e.loadAll(ctx, pcfg.Table)
	if err != nil {
		return nil, err
	}
	idx := &parentIndex{
		cfg:    pcfg,
		byID:   make(map[string]map[string]any, len(rows)),
		byName: make(map[string]map[string]any, len(rows)),
	}
	for _, row := range rows {
		if id := row[pcfg.IDColumn]; id != nil {
			idx.byID[compareString(id)] = row
		}
		if ref.ParentNameColumn != "" {
			if n := row[ref.ParentNameColumn]; n != nil {
				idx.byName[strings.ToLower(compareString(n))] = row
			}
		}
	}
	return idx, nil
}

// resolveRef repairs the payload's foreign key in place: a known id stands, a
// dangling or missing id falls back to by-name matching, and when nothing
// matches a minimal placeholder parent is created. A reference that cannot be
// repaired is nulled out rather than failing the row.
func (e *Engine) resolveRef(ctx context.Context, ref *RefConfig, parents *parentIndex, payload map[string]any) {
	idv := payload[ref.IDField]
	var namev any
	if ref.NameField != "" {
		namev = payload[ref.NameField]
	}

	if idv != nil {
		if _, ok := parents.byID[compareString(idv)]; ok {
			return
		}
		if namev != nil {
			if p, ok := parents.byName[strings.ToLower(compareString(namev))]; ok {
				payload[ref.IDField] = p[parents.cfg.IDColumn]
				return
			}
			e.createParent(ctx, ref, parents, payload)
			return
		}
		if ref.AlwaysCreate {
			e.createParent(ctx, ref, parents, payload)
			return
		}
		payload[ref.IDField] = nil
		return
	}

	if namev != nil {
		if p, ok := parents.byName[strings.ToLower(compareString(namev))]; ok {
			payload[ref.IDField] = p[parents.cfg.IDColumn]
			return
		}
		e.createParent(ctx, ref, parents, payload)
		return
	}

	if ref.AlwaysCreate {
		e.createParent(ctx, ref, parents, payload)
	}
}

func (e *Engine) createParent(ctx context.Context, ref *RefConfig, parents *parentIndex, payload map[string]any) {
	data := ref.Placeholder(payload)
	id, row, err := e.repo.InsertRow(ctx, parents.cfg.Table, data)
	if err != nil {
		payload[ref.IDField] = nil
		return
	}
	if id == nil && row != nil {
		id = row[parents.cfg.IDColumn]
	}
	payload[ref.IDField] = id
	if row == nil {
		row = data
		row[parents.cfg.IDColumn] = id
	}
	if id != nil {
		parents.byID[compareString(id)] = row
	}
	if ref.ParentNameColumn != "" {
		if n := row[ref.ParentNameColumn]; n != nil {
			parents.byName[strings.ToLower(compareString(n))] = row
		}
	}
}

func sameRecord(cfg *EntityConfig, existing, payload map[string]any) bool {
	for _, f := range cfg.CompareFields {
		if !valuesEqual(existing[f], payload[f], cfg.fieldNumeric(f)) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any, numeric bool) bool {
	if numeric {
		af, aerr := toFloat(a)
		bf, berr := toFloat(b)
		if aerr == nil && berr == nil {
			return af == bf
		}
	}
	return compareString(a) == compareString(b)
}

// compareString normalizes a value for equality checks across the type drift
// between parsed cells and driver-returned columns.
func compareString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return formatTime(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []byte:
		return normalizeDateString(string(val))
	case string:
		return normalizeDateString(strings.TrimSpace(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// normalizeDateString recognizes every layout the coercion layer accepts on
// insert; anything less and a re-import of the same file keeps reporting
// updates for date fields written in a non-stored layout.
func normalizeDateString(s string) string {
	if t, ok := dyndb.ParseTime(s); ok {
		return formatTime(t)
	}
	return s
}

func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
