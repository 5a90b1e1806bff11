// internal/rules/conditions.go
package rules

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/solatis/editcheck/internal/types"
)

/*
 * Built-in condition library.
 *
 * Registers the record-level conditions every catalog may reference, plus the
 * document-level aggregates in aggregates.go. Lookup-backed capabilities live
 * in internal/lookup and are registered on top of this library.
 *
 * Binary comparisons are registered twice: "equal" compares against a literal
 * field, "equal_property" against another property (the compiler resolves
 * string fields of *_property conditions as paths).
 */

// DateLayout is the filing date format (YYYYMMDD).
const DateLayout = "20060102"

// NewBuiltinLibrary returns a library holding every built-in condition and
// aggregate.
func NewBuiltinLibrary() (*Library, error) {
	lib := NewLibrary()
	if err := RegisterBuiltins(lib); err != nil {
		return nil, err
	}
	return lib, nil
}

// RegisterBuiltins adds the built-in capabilities to lib.
func RegisterBuiltins(lib *Library) error {
	exprs, err := newExprCache()
	if err != nil {
		return err
	}
	regexps := &regexCache{}

	binary := map[string]func(a, b any) bool{
		"equal":                 compareEqual,
		"not_equal":             func(a, b any) bool { return !compareEqual(a, b) },
		"greater_than":          ordered(func(c int) bool { return c > 0 }),
		"greater_than_or_equal": ordered(func(c int) bool { return c >= 0 }),
		"less_than":             ordered(func(c int) bool { return c < 0 }),
		"less_than_or_equal":    ordered(func(c int) bool { return c <= 0 }),
	}
	for name, cmp := range binary {
		fn := binaryPredicate(name, cmp)
		if err := lib.RegisterPredicate(name, fn); err != nil {
			return err
		}
		if err := lib.RegisterPredicate(name+PropertySuffix, fn); err != nil {
			return err
		}
	}

	preds := map[string]PredicateFunc{
		"is_true": unaryPredicate("is_true", func(v any) bool {
			b, ok := coerceBoolean(v)
			return ok && b
		}),
		"is_false": unaryPredicate("is_false", func(v any) bool {
			b, ok := coerceBoolean(v)
			return ok && !b
		}),
		"is_empty":   unaryPredicate("is_empty", isEmptyValue),
		"not_empty":  unaryPredicate("not_empty", func(v any) bool { return !isEmptyValue(v) }),
		"is_integer": unaryPredicate("is_integer", isInteger),
		"is_numeric": unaryPredicate("is_numeric", func(v any) bool {
			_, ok := coerceNumeric(v)
			return ok
		}),
		"is_date":     unaryPredicate("is_date", isDate),
		"is_in":       binaryPredicate("is_in", compareIn),
		"not_in":      binaryPredicate("not_in", func(a, b any) bool { return !compareIn(a, b) }),
		"starts_with": binaryPredicate("starts_with", comparePrefix),
		"ends_with":   binaryPredicate("ends_with", compareSuffix),
		"between": func(_ context.Context, args []any) (bool, error) {
			if err := arity("between", args, 3); err != nil {
				return false, err
			}
			return compareBetween(args[0], args[1], args[2]), nil
		},
		"matches_regex": regexps.matches,
		"satisfies":     exprs.satisfies,
	}
	for name, fn := range preds {
		if err := lib.RegisterPredicate(name, fn); err != nil {
			return err
		}
	}

	aggs := map[string]AggregateFunc{
		"hasUniqueLoanNumbers": hasUniqueLoanNumbers,
		"maxProportion":        maxProportion,
	}
	for name, fn := range aggs {
		if err := lib.RegisterAggregate(name, fn); err != nil {
			return err
		}
	}
	return nil
}

// arity rejects calls with fewer than n arguments. A catalog rule missing a
// field is a rule-spec problem, not a data problem.
func arity(name string, args []any, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: %s expects %d arguments, got %d", types.ErrMalformedRule, name, n, len(args))
	}
	return nil
}

func unaryPredicate(name string, test func(any) bool) PredicateFunc {
	return func(_ context.Context, args []any) (bool, error) {
		if err := arity(name, args, 1); err != nil {
			return false, err
		}
		return test(args[0]), nil
	}
}

func binaryPredicate(name string, test func(a, b any) bool) PredicateFunc {
	return func(_ context.Context, args []any) (bool, error) {
		if err := arity(name, args, 2); err != nil {
			return false, err
		}
		return test(args[0], args[1]), nil
	}
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int32, int64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0)
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
		if s == "" {
			return false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isDate(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// regexCache compiles each pattern once.
type regexCache struct {
	patterns sync.Map // string -> *regexp.Regexp
}

func (c *regexCache) matches(_ context.Context, args []any) (bool, error) {
	if err := arity("matches_regex", args, 2); err != nil {
		return false, err
	}
	pattern, ok := args[1].(string)
	if !ok {
		return false, fmt.Errorf("%w: matches_regex pattern must be a string", types.ErrMalformedRule)
	}
	var re *regexp.Regexp
	if cached, ok := c.patterns.Load(pattern); ok {
		re = cached.(*regexp.Regexp)
	} else {
		compiled, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w: matches_regex: %v", types.ErrMalformedRule, err)
		}
		c.patterns.Store(pattern, compiled)
		re = compiled
	}
	if args[0] == nil {
		return false, nil
	}
	return re.MatchString(coerceText(args[0])), nil
}
