package expr

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Resolve turns an operand token into a value. Quoted strings, booleans,
// null and numbers are literals; any other token is looked up in vars and,
// when absent, treated as a bare string.
func Resolve(s string, vars map[string]any) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "nil":
		return nil
	}

	var num json.Number
	if err := json.Unmarshal([]byte(s), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if val, ok := vars[s]; ok {
		return val
	}
	return s
}

// IsTruthy reports whether v counts as true: nil, false, "" and numeric
// zero are false, everything else is true.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	default:
		if f, ok := Number(v); ok {
			return f != 0
		}
		return true
	}
}

// Number converts numeric values (and numeric strings) to float64.
func Number(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint64:
		return float64(val), true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

// ToFloat64 is Number without the ok flag; non-numeric values become 0.
func ToFloat64(v any) float64 {
	f, _ := Number(v)
	return f
}
