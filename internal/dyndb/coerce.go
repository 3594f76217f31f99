package dyndb

import (
	"fmt"
	"strings"
	"time"

	"coverdesk/internal/store"
)

// CoercionError reports a value that could not be converted to the shape the
// column expects. It names the column and echoes the offending value.
type CoercionError struct {
	Column string
	Value  any
	Reason string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("invalid %s value for column %q: %v", e.Reason, e.Column, e.Value)
}

// Type categories relevant to coercion. Everything else passes through.
const (
	categoryOther = iota
	categoryDate
	categoryDateTime
	categoryBoolFlag
)

// typeCategory classifies a declared column type. Catalog readers report
// types in their backing store's vocabulary ("date", "timestamp without time
// zone", "DATETIME", "TINYINT(1)", "boolean"), so matching is loose.
func typeCategory(declared string) int {
	t := strings.ToLower(strings.TrimSpace(declared))
	switch {
	case t == "date":
		return categoryDate
	case t == "datetime", strings.HasPrefix(t, "timestamp"):
		return categoryDateTime
	case strings.HasPrefix(t, "bool"), t == "tinyint(1)":
		return categoryBoolFlag
	default:
		return categoryOther
	}
}

// Input layouts accepted for date and datetime values. Files and forms hand
// in anything from bare dates to full RFC3339 timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTime parses a string in any of the accepted date/datetime input
// layouts. Comparisons against stored values must recognize the same layouts
// coercion accepts on write, so they share this parser.
func ParseTime(s string) (time.Time, bool) {
	return parseTime(s)
}

// CoerceValue converts a raw input value into the representation the backing
// store accepts for the given column. Nil always passes through: explicit
// nulls are allowed. Unknown type categories pass through unchanged.
func CoerceValue(col store.Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch typeCategory(col.Type) {
	case categoryDate:
		t, ok := coerceTime(v)
		if !ok {
			return nil, &CoercionError{Column: col.Name, Value: v, Reason: "date"}
		}
		return t.Format("2006-01-02"), nil

	case categoryDateTime:
		t, ok := coerceTime(v)
		if !ok {
			return nil, &CoercionError{Column: col.Name, Value: v, Reason: "datetime"}
		}
		return t.Format("2006-01-02 15:04:05"), nil

	case categoryBoolFlag:
		return coerceBoolFlag(col.Type, v), nil

	default:
		return v, nil
	}
}

func coerceTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		return parseTime(val)
	default:
		return parseTime(fmt.Sprintf("%v", val))
	}
}

// coerceBoolFlag accepts bool, numeric 0/1 and the strings
// "true"/"false"/"0"/"1". Anything else passes through unchanged and is left
// to the backing store to accept or reject.
func coerceBoolFlag(declared string, v any) any {
	var flag int
	switch val := v.(type) {
	case bool:
		if val {
			flag = 1
		}
	case int:
		if val != 0 && val != 1 {
			return v
		}
		flag = val
	case int64:
		if val != 0 && val != 1 {
			return v
		}
		flag = int(val)
	case float64:
		if val != 0 && val != 1 {
			return v
		}
		flag = int(val)
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1":
			flag = 1
		case "false", "0":
			flag = 0
		default:
			return v
		}
	default:
		return v
	}

	// PostgreSQL wants a real boolean; flag columns elsewhere take 0/1.
	if strings.HasPrefix(strings.ToLower(declared), "bool") {
		return flag == 1
	}
	return flag
}
