// internal/rules/coercion.go
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

/*
 * Value coercion for built-in conditions.
 *
 * Filing fields arrive mostly as strings ("2", "0012", "20170131"); computed
 * properties such as details.length arrive as Go ints; decoded JSON literals
 * arrive as float64. Conditions coerce both sides before comparing.
 *
 * Modes:
 *   - numeric: strict. Numeric types and trimmed plain-decimal strings
 *     (optional sign, digits, optional fraction and exponent). NaN, Inf,
 *     hex floats, digit separators, booleans and blanks are rejected
 *   - text: lenient. Every value renders to a string
 *   - boolean: lenient. bool plus case-insensitive "true"/"false" strings
 *
 * nil is never coerced; callers treat it as an empty value.
 */

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// coerceNumeric converts value to float64. Reports false for anything that is
// not a number or a numeric string.
func coerceNumeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		v = strings.TrimSpace(v)
		if !decimalPattern.MatchString(v) {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// coerceText renders any value as a string. nil renders as "".
func coerceText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// coerceBoolean accepts bool and the strings "true"/"false" in any case.
func coerceBoolean(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// isEmptyValue is true for nil, blank strings and empty collections.
func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
