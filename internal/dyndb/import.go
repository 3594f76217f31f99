package dyndb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ImportEntry records the outcome of one imported row, 1-based in file order.
type ImportEntry struct {
	Row    int    `json:"row"`
	Status string `json:"status"`
	ID     any    `json:"id,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ImportResult summarizes a generic table import.
type ImportResult struct {
	Table    string        `json:"table"`
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"errored"`
	Total    int           `json:"total"`
	Report   []ImportEntry `json:"report"`
}

// ImportPreview is the column-match analysis shown before a table import.
type ImportPreview struct {
	Table    string           `json:"table"`
	Columns  []string         `json:"columns"`
	Matching []string         `json:"matching"`
	Extra    []string         `json:"extra"`
	Missing  []string         `json:"missing"`
	Rows     []map[string]any `json:"rows"`
	Total    int              `json:"total"`
}

// PreviewImport compares a parsed file's fields against the table's columns
// and returns the first few rows for inspection. Nothing is written.
func (r *Repo) PreviewImport(ctx context.Context, table string, records []map[string]any, sampleRows int) (*ImportPreview, error) {
	schema, err := r.catalog.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}

	colSet := make(map[string]bool, len(schema.Columns))
	cols := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		colSet[c.Name] = true
		cols = append(cols, c.Name)
	}

	fieldSet := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			fieldSet[k] = true
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	p := &ImportPreview{
		Table:    schema.Name,
		Columns:  cols,
		Matching: []string{},
		Extra:    []string{},
		Missing:  []string{},
		Total:    len(records),
	}
	for _, f := range fields {
		if colSet[f] {
			p.Matching = append(p.Matching, f)
		} else {
			p.Extra = append(p.Extra, f)
		}
	}
	for _, c := range schema.Columns {
		if c.AutoIncrement {
			continue
		}
		if !fieldSet[c.Name] {
			p.Missing = append(p.Missing, c.Name)
		}
	}

	if sampleRows < 1 {
		sampleRows = 10
	}
	if sampleRows > len(records) {
		sampleRows = len(records)
	}
	p.Rows = records[:sampleRows]
	if p.Rows == nil {
		p.Rows = []map[string]any{}
	}
	return p, nil
}

// ImportRecords reconciles parsed records against any table by primary key:
// a record carrying a known key value updates or skips, everything else
// inserts. Fields that are not columns of the table are dropped. Row
// failures are reported, never propagated.
func (r *Repo) ImportRecords(ctx context.Context, table string, records []map[string]any) (*ImportResult, error) {
	schema, err := r.catalog.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	pk := schema.PrimaryKey

	res := &ImportResult{
		Table:  schema.Name,
		Total:  len(records),
		Report: make([]ImportEntry, 0, len(records)),
	}
	for i, rec := range records {
		entry := r.importRecord(ctx, schema, pk, i+1, rec)
		switch entry.Status {
		case "inserted":
			res.Inserted++
		case "updated":
			res.Updated++
		case "skipped":
			res.Skipped++
		case "error":
			res.Errored++
		}
		res.Report = append(res.Report, entry)
	}
	return res, nil
}

func (r *Repo) importRecord(ctx context.Context, schema *TableDescriptor, pk string, rowNum int, rec map[string]any) ImportEntry {
	entry := ImportEntry{Row: rowNum}

	data := make(map[string]any, len(rec))
	for k, v := range rec {
		if schema.Column(k) != nil {
			data[k] = v
		}
	}
	if len(data) == 0 {
		entry.Status = "error"
		entry.Reason = "no fields match table columns"
		return entry
	}

	var existing map[string]any
	if pk != "" {
		if keyVal, ok := data[pk]; ok && keyVal != nil && fmt.Sprintf("%v", keyVal) != "" {
			row, err := r.fetchByKey(ctx, schema.Name, pk, keyVal)
			if err == nil {
				existing = row
			}
		}
	}

	if existing == nil {
		id, _, err := r.InsertRow(ctx, schema.Name, data)
		if err != nil {
			entry.Status = "error"
			entry.Reason = err.Error()
			return entry
		}
		entry.Status = "inserted"
		entry.ID = id
		return entry
	}

	entry.ID = existing[pk]
	if sameFields(data, existing, pk) {
		entry.Status = "skipped"
		return entry
	}
	if _, err := r.UpdateRow(ctx, schema.Name, pk, existing[pk], data); err != nil {
		entry.Status = "error"
		entry.Reason = err.Error()
		return entry
	}
	entry.Status = "updated"
	return entry
}

func sameFields(data, existing map[string]any, pk string) bool {
	for k, v := range data {
		if k == pk {
			continue
		}
		if looseString(v) != looseString(existing[k]) {
			return false
		}
	}
	return true
}

// looseString flattens parsed-cell and driver-value type drift for equality.
// Date-shaped strings are reparsed through the coercion layouts: an incoming
// cell may carry any accepted layout while the stored value is normalized.
func looseString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return looseTime(val)
	case []byte:
		return normalizeDateText(string(val))
	case string:
		return normalizeDateText(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func normalizeDateText(s string) string {
	s = strings.TrimSpace(s)
	if t, ok := parseTime(s); ok {
		return looseTime(t)
	}
	return s
}

func looseTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
