// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/editcheck/internal/types"
)

/*
 * Property path resolution across a context chain.
 *
 * Resolves dotted paths ("header.respondentID", "details.length") against an
 * ordered list of read-only lookups. The first context in which every segment
 * exists wins; a JSON null counts as defined. When no context resolves the path
 * the caller gets *types.UnresolvedArgumentError carrying the path, which the
 * orchestrator reports as a rule-spec error rather than a validation failure.
 *
 * Key functions:
 *   - SplitPath: validates and splits a dotted path (compile time)
 *   - Resolve: tries each context in order
 *   - resolveSegments: traversal within one context
 *
 * Traversal handles types.Lookup values, map[string]any, map[string]string
 * and []any. The "length" segment yields a collection's size and numeric
 * segments index into collections.
 */

// SplitPath validates a dotted path and returns its segments.
// Returns ErrPathTooDeep past MaxPathDepth and ErrMalformedRule on empty segments.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, types.ErrMalformedRule
	}
	segs := strings.Split(path, ".")
	if len(segs) > types.MaxPathDepth {
		return nil, types.ErrPathTooDeep
	}
	for _, s := range segs {
		if s == "" {
			return nil, types.ErrMalformedRule
		}
	}
	return segs, nil
}

// Resolve looks path up in each context in order.
func Resolve(path string, contexts ...types.Lookup) (any, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	return resolveChain(path, segs, contexts)
}

func resolveChain(path string, segs []string, contexts []types.Lookup) (any, error) {
	for _, c := range contexts {
		if c == nil {
			continue
		}
		v, err := resolveSegments(segs, c)
		if err == nil {
			return v, nil
		}
	}
	return nil, &types.UnresolvedArgumentError{Path: path}
}

// resolveSegments walks one context. Returns ErrFieldNotFound when any segment
// is missing or the value cannot be traversed further.
func resolveSegments(segs []string, current any) (any, error) {
	for _, seg := range segs {
		next, ok := step(current, seg)
		if !ok {
			return nil, types.ErrFieldNotFound
		}
		current = next
	}
	return current, nil
}

func step(current any, seg string) (any, bool) {
	switch v := current.(type) {
	case types.Lookup:
		return v.Lookup(seg)
	case map[string]any:
		val, ok := v[seg]
		return val, ok
	case map[string]string:
		val, ok := v[seg]
		return val, ok
	case []any:
		if seg == "length" {
			return len(v), true
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	default:
		// Scalar or nil value but path continues
		return nil, false
	}
}
