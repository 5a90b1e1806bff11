// internal/rules/operators.go
package rules

import (
	"strings"
)

/*
 * Comparison primitives shared by the built-in conditions.
 *
 * Values are raw resolved arguments; each primitive coerces what it needs.
 *
 * Equality: two strings compare textually ("0012" != "12", since loan numbers
 * and codes are identifiers); otherwise numeric when both sides coerce, else
 * textual.
 * Ordering: numeric only. Incomparable values make every ordering false.
 * Membership: equality semantics against a []any set.
 */

// compareEqual reports a == b under the equality rules above.
func compareEqual(a, b any) bool {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if aStr && bStr {
		return as == bs
	}
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return coerceText(a) == coerceText(b)
}

// compareNumeric performs three-way numeric comparison (-1/0/1).
// ok is false when either side is not numeric.
func compareNumeric(a, b any) (int, bool) {
	na, nb, ok := asNumbers(a, b)
	if !ok {
		return 0, false
	}
	switch {
	case na < nb:
		return -1, true
	case na > nb:
		return 1, true
	default:
		return 0, true
	}
}

// asNumbers coerces both values for numeric comparison.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := coerceNumeric(a)
	nb, okb := coerceNumeric(b)
	return na, nb, oka && okb
}

// ordered builds an ordering predicate from a comparison result test.
func ordered(test func(int) bool) func(a, b any) bool {
	return func(a, b any) bool {
		c, ok := compareNumeric(a, b)
		return ok && test(c)
	}
}

// comparePrefix checks if value starts with prefix (both rendered as text).
func comparePrefix(value, prefix any) bool {
	if value == nil {
		return false
	}
	return strings.HasPrefix(coerceText(value), coerceText(prefix))
}

// compareSuffix checks if value ends with suffix (both rendered as text).
func compareSuffix(value, suffix any) bool {
	if value == nil {
		return false
	}
	return strings.HasSuffix(coerceText(value), coerceText(suffix))
}

// compareIn checks if value exists in set using equality semantics.
func compareIn(value, set any) bool {
	arr, ok := set.([]any)
	if !ok {
		return compareEqual(value, set)
	}
	for _, elem := range arr {
		if compareEqual(value, elem) {
			return true
		}
	}
	return false
}

// compareBetween checks start <= value <= end numerically.
func compareBetween(value, start, end any) bool {
	lo, ok1 := compareNumeric(value, start)
	hi, ok2 := compareNumeric(value, end)
	return ok1 && ok2 && lo >= 0 && hi <= 0
}
