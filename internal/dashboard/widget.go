// Package dashboard compiles declarative widget descriptors into
// parameterized aggregation queries and shapes the results for presentation,
// and persists dashboard definitions with their JSON widget configuration.
package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"coverdesk/internal/dyndb"
	"coverdesk/internal/store"
)

// Widget describes one visualization to run against a table. GroupBy may be
// a bare column name or a computed SQL expression; computed expressions are
// trusted as-is, they come from privileged dashboard authors only.
type Widget struct {
	ID          string   `json:"id,omitempty"`
	Type        string   `json:"type"`
	Title       string   `json:"title,omitempty"`
	Table       string   `json:"table"`
	Aggregation string   `json:"aggregation,omitempty"`
	Column      string   `json:"column,omitempty"`
	GroupBy     string   `json:"groupBy,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// Filter narrows a widget's rows. It only applies to widgets whose target
// table matches its own.
type Filter struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// SeriesPoint is one labeled value of a grouped widget result.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Result is the shaped outcome of one widget run. Exactly one shape is
// populated — Value, Series, or Columns/Rows — except for series-typed
// widgets without grouping, which carry the scalar plus an empty series.
// Error is set instead when the widget failed to compile or execute.
type Result struct {
	Type    string           `json:"type"`
	Title   string           `json:"title,omitempty"`
	Value   *float64         `json:"value,omitempty"`
	Series  []SeriesPoint    `json:"data,omitempty"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// CompileError marks a widget descriptor the compiler rejected.
type CompileError struct {
	Reason string
}

func (e *CompileError) Error() string {
	return "widget: " + e.Reason
}

var aggregations = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

// Compile turns a widget plus applicable filters into one SQL statement and
// its bound parameters. Identifiers are sanitized; filter values only travel
// as parameters.
func Compile(dialect store.Dialect, w Widget, filters []Filter) (string, []any, error) {
	if w.Table == "" {
		return "", nil, &CompileError{Reason: "table is required"}
	}
	table, err := dyndb.SafeIdent(w.Table)
	if err != nil {
		return "", nil, err
	}

	pb := dialect.NewParamBuilder()
	where, err := buildWhere(pb, dialect, w.Table, filters)
	if err != nil {
		return "", nil, err
	}

	if w.Type == "table" {
		if len(w.Columns) == 0 {
			return "", nil, &CompileError{Reason: "table widget needs at least one column"}
		}
		cols, err := dyndb.SafeIdents(w.Columns)
		if err != nil {
			return "", nil, err
		}
		sqlText := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), table)
		sqlText += where
		if w.Limit > 0 {
			sqlText += " LIMIT " + pb.Add(w.Limit)
		}
		return sqlText, pb.Params(), nil
	}

	agg := strings.ToLower(strings.TrimSpace(w.Aggregation))
	if !aggregations[agg] {
		return "", nil, &CompileError{Reason: fmt.Sprintf("unsupported aggregation %q", w.Aggregation)}
	}
	aggExpr, err := aggregationExpr(agg, w.Column)
	if err != nil {
		return "", nil, err
	}

	if w.GroupBy != "" {
		groupExpr := w.GroupBy
		computed := strings.Contains(groupExpr, "(")
		if !computed {
			groupExpr, err = dyndb.SafeIdent(groupExpr)
			if err != nil {
				return "", nil, err
			}
		}
		order := "value DESC"
		if computed {
			// computed/date expressions read naturally in label order
			order = "label"
		}
		sqlText := fmt.Sprintf("SELECT %s AS label, %s AS value FROM %s%s GROUP BY %s ORDER BY %s",
			groupExpr, aggExpr, table, where, groupExpr, order)
		if w.Limit > 0 {
			sqlText += " LIMIT " + pb.Add(w.Limit)
		}
		return sqlText, pb.Params(), nil
	}

	return fmt.Sprintf("SELECT %s AS value FROM %s%s", aggExpr, table, where), pb.Params(), nil
}

func aggregationExpr(agg, column string) (string, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		if agg != "count" {
			return "", &CompileError{Reason: agg + " needs a target column"}
		}
		return "COUNT(*)", nil
	}

	inner := column
	distinct := false
	if rest, ok := cutPrefixFold(column, "distinct "); ok {
		distinct = true
		inner = strings.TrimSpace(rest)
	}
	col, err := dyndb.SafeIdent(inner)
	if err != nil {
		return "", err
	}
	if distinct {
		col = "DISTINCT " + col
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(agg), col), nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

func buildWhere(pb store.ParamBuilder, dialect store.Dialect, table string, filters []Filter) (string, error) {
	var frags []string
	for _, f := range filters {
		if f.Table != table {
			continue
		}
		// an unset filter value means "no constraint", not "match empty"
		if f.Value == nil || f.Value == "" {
			continue
		}
		col, err := dyndb.SafeIdent(f.Column)
		if err != nil {
			return "", err
		}
		switch f.Operator {
		case "equals":
			frags = append(frags, col+" = "+pb.Add(f.Value))
		case "not_equals":
			frags = append(frags, col+" != "+pb.Add(f.Value))
		case "greater":
			frags = append(frags, col+" > "+pb.Add(f.Value))
		case "less":
			frags = append(frags, col+" < "+pb.Add(f.Value))
		case "contains":
			frags = append(frags, col+" "+dialect.LikeOperator()+" "+pb.Add(fmt.Sprintf("%%%v%%", f.Value)))
		default:
			return "", &CompileError{Reason: fmt.Sprintf("unsupported filter operator %q", f.Operator)}
		}
	}
	if len(frags) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(frags, " AND "), nil
}

// Run compiles and executes one widget. Any failure becomes the widget's
// Error result; Run never returns an error to its caller.
func Run(ctx context.Context, q store.Querier, dialect store.Dialect, w Widget, filters []Filter) Result {
	res := Result{Type: w.Type, Title: w.Title}

	sqlText, params, err := Compile(dialect, w, filters)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	rows, err := store.QueryRows(ctx, q, sqlText, params...)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	switch {
	case w.Type == "table":
		if rows == nil {
			rows = []map[string]any{}
		}
		res.Columns = w.Columns
		res.Rows = rows

	case w.GroupBy != "":
		series := make([]SeriesPoint, 0, len(rows))
		for _, row := range rows {
			series = append(series, SeriesPoint{
				Label: labelString(row["label"]),
				Value: numberOrZero(row["value"]),
			})
		}
		res.Series = series

	case w.Type == "kpi":
		v := 0.0
		if len(rows) > 0 {
			v = numberOrZero(rows[0]["value"])
		}
		res.Value = &v

	default:
		// series-typed widget without grouping: the aggregate as a scalar,
		// with an always-empty series alongside
		v := 0.0
		if len(rows) > 0 {
			v = numberOrZero(rows[0]["value"])
		}
		res.Value = &v
		res.Series = []SeriesPoint{}
	}
	return res
}

// RunAll evaluates every widget; one widget's failure never aborts its
// siblings.
func RunAll(ctx context.Context, q store.Querier, dialect store.Dialect, widgets []Widget, filters []Filter) []Result {
	results := make([]Result, 0, len(widgets))
	for _, w := range widgets {
		results = append(results, Run(ctx, q, dialect, w, filters))
	}
	return results
}

func labelString(v any) string {
	switch val := v.(type) {
	case nil:
		return "(null)"
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func numberOrZero(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case []byte:
		f, _ := strconv.ParseFloat(string(val), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
