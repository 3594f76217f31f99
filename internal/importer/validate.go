package importer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate extracts an entity payload from a raw record and checks it.
// The payload carries every configured field, nil when absent; numeric
// fields are converted to float64. The returned slice holds one message per
// violation and is empty for a clean row.
func Validate(cfg *EntityConfig, rec map[string]any) (map[string]any, []string) {
	payload := make(map[string]any, len(cfg.Fields))
	var errs []string

	for _, f := range cfg.Fields {
		v := firstValue(rec, f.Name, f.Aliases...)
		if isEmpty(v) {
			v = nil
		}
		if v == nil {
			if f.Required {
				errs = append(errs, f.Name+" is required")
			}
			payload[f.Name] = nil
			continue
		}
		if f.Numeric {
			n, err := toFloat(v)
			if err != nil {
				errs = append(errs, f.Name+" must be numeric")
				payload[f.Name] = nil
				continue
			}
			v = n
		}
		if f.Email && !emailPattern.MatchString(strings.TrimSpace(fmt.Sprintf("%v", v))) {
			errs = append(errs, f.Name+" is not a valid email address")
		}
		payload[f.Name] = v
	}

	if len(errs) > 0 {
		return payload, errs
	}

	for i := range cfg.Checks {
		if msg := evalCheck(&cfg.Checks[i], payload); msg != "" {
			errs = append(errs, msg)
		}
	}
	return payload, errs
}

// evalCheck compiles the guard on first use and runs it against the payload.
// A guard evaluating to true is a violation.
func evalCheck(c *Check, payload map[string]any) string {
	if c.compiled == nil {
		prog, err := expr.Compile(c.Expr, expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return fmt.Sprintf("check %q: %v", c.Expr, err)
		}
		c.compiled = prog
	}
	out, err := expr.Run(c.compiled, payload)
	if err != nil {
		return fmt.Sprintf("check %q: %v", c.Expr, err)
	}
	if violated, ok := out.(bool); ok && violated {
		return c.Message
	}
	return ""
}

// firstValue returns the first non-empty value among a field's name and its
// aliases.
func firstValue(rec map[string]any, name string, aliases ...string) any {
	if v, ok := rec[name]; ok && !isEmpty(v) {
		return v
	}
	for _, alias := range aliases {
		if v, ok := rec[alias]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(val), 64)
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
