package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/editcheck/internal/types"
)

// PredicateFunc is a record-level capability: resolved arguments in, pass/fail out.
// args[0] is the subject property value for Condition leaves; extra fields follow
// in declaration order.
type PredicateFunc func(ctx context.Context, args []any) (bool, error)

// AggregateFunc is a document-level capability that produces fully formed error
// entries. An empty result means the edit passed.
type AggregateFunc func(ctx context.Context, doc *types.Document, args []any) ([]types.ErrorEntry, error)

// PropertySuffix marks condition names whose extra fields are property paths.
const PropertySuffix = "_property"

// IsPropertyVariant reports whether a condition's extra fields reference properties.
func IsPropertyVariant(name string) bool {
	return strings.HasSuffix(name, PropertySuffix)
}

// Library maps condition and function names to typed callables. It is built
// once before compilation and treated as read-only afterwards.
type Library struct {
	predicates map[string]PredicateFunc
	aggregates map[string]AggregateFunc
}

// NewLibrary returns an empty library.
func NewLibrary() *Library {
	return &Library{
		predicates: make(map[string]PredicateFunc),
		aggregates: make(map[string]AggregateFunc),
	}
}

// RegisterPredicate adds a record-level capability.
func (l *Library) RegisterPredicate(name string, fn PredicateFunc) error {
	if err := l.checkFree(name); err != nil {
		return err
	}
	l.predicates[name] = fn
	return nil
}

// RegisterAggregate adds a document-level capability.
func (l *Library) RegisterAggregate(name string, fn AggregateFunc) error {
	if err := l.checkFree(name); err != nil {
		return err
	}
	l.aggregates[name] = fn
	return nil
}

func (l *Library) checkFree(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty function name", types.ErrMalformedRule)
	}
	_, p := l.predicates[name]
	_, a := l.aggregates[name]
	if p || a {
		return fmt.Errorf("%w: %s", types.ErrDuplicateFunction, name)
	}
	return nil
}

// Predicate returns the record-level capability registered under name.
func (l *Library) Predicate(name string) (PredicateFunc, bool) {
	fn, ok := l.predicates[name]
	return fn, ok
}

// Aggregate returns the document-level capability registered under name.
func (l *Library) Aggregate(name string) (AggregateFunc, bool) {
	fn, ok := l.aggregates[name]
	return fn, ok
}

// Names lists every registered name, sorted.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.predicates)+len(l.aggregates))
	for n := range l.predicates {
		names = append(names, n)
	}
	for n := range l.aggregates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
