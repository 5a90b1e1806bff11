// internal/rules/compile.go
package rules

import (
	"context"
	"fmt"

	"github.com/solatis/editcheck/internal/types"
)

/*
 * Rule compilation.
 *
 * Compiles a types.Node rule tree into a CompiledPredicate: a tree of typed
 * evaluation nodes (leaf, and, or, ternary) plus a flat, ordered list of
 * argument descriptors and the set of referenced property names.
 *
 * Compilation workflow:
 *   1. Recurse over the five node variants, depth-limited by MaxRuleDepth
 *   2. Condition/Call leaves resolve their function in the Library (unknown
 *      names fail here, never at evaluation time)
 *   3. Each leaf pushes its argument descriptors: subject property first,
 *      then extra fields (literals, or paths for *_property conditions); Call
 *      args override the single-argument convention
 *   4. If compiles to (if ? then : true); And/Or join children in order
 *   5. Path descriptors are collected into the property set
 *
 * Descriptor order is the depth-first leaf order of the tree, so compiling the
 * same tree twice yields identical descriptors.
 */

// ArgDescriptor is one argument slot of a compiled predicate.
type ArgDescriptor struct {
	Path    string // property path (IsPath)
	Literal any    // fixed value (!IsPath && !Subject)
	IsPath  bool
	Subject bool   // the evaluation subject itself (Call without property/args)
	Label   string // error-context key override

	segs []string
}

// Key is the error-context name for a path descriptor.
func (a ArgDescriptor) Key() string {
	if a.Label != "" {
		return a.Label
	}
	return a.Path
}

// CompiledPredicate is the executable form of a rule tree. Immutable and safe
// for concurrent evaluation.
type CompiledPredicate struct {
	args       []ArgDescriptor
	properties []string
	root       evalNode
}

// Args returns the ordered argument descriptors.
func (p *CompiledPredicate) Args() []ArgDescriptor {
	return append([]ArgDescriptor(nil), p.args...)
}

// Properties returns the distinct error-context keys of path descriptors in
// first-seen order.
func (p *CompiledPredicate) Properties() []string {
	return append([]string(nil), p.properties...)
}

// Compile translates a rule tree into a CompiledPredicate using lib to bind
// condition and function names.
func Compile(rule *types.Node, lib *Library) (*CompiledPredicate, error) {
	if lib == nil {
		return nil, fmt.Errorf("library cannot be nil")
	}
	c := &compiler{lib: lib}
	root, err := c.compileNode(rule, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var props []string
	for _, a := range c.args {
		if !a.IsPath || seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		props = append(props, a.Key())
	}

	return &CompiledPredicate{args: c.args, properties: props, root: root}, nil
}

type compiler struct {
	lib  *Library
	args []ArgDescriptor
}

func (c *compiler) compileNode(n *types.Node, depth int) (evalNode, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", types.ErrMalformedRule)
	}
	if depth > types.MaxRuleDepth {
		return nil, fmt.Errorf("%w: nesting exceeds %d", types.ErrMalformedRule, types.MaxRuleDepth)
	}

	switch n.Kind {
	case types.NodeCondition:
		return c.compileCondition(n)
	case types.NodeCall:
		return c.compileCall(n)
	case types.NodeIf:
		cond, err := c.compileNode(n.If, depth+1)
		if err != nil {
			return nil, err
		}
		then, err := c.compileNode(n.Then, depth+1)
		if err != nil {
			return nil, err
		}
		return &ternaryNode{cond: cond, then: then}, nil
	case types.NodeAnd, types.NodeOr:
		if len(n.Children) == 0 {
			return nil, fmt.Errorf("%w: empty %s", types.ErrMalformedRule, n.Kind)
		}
		children := make([]evalNode, 0, len(n.Children))
		for _, child := range n.Children {
			cn, err := c.compileNode(child, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, cn)
		}
		if n.Kind == types.NodeAnd {
			return &andNode{children: children}, nil
		}
		return &orNode{children: children}, nil
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d", types.ErrMalformedRule, n.Kind)
	}
}

func (c *compiler) compileCondition(n *types.Node) (evalNode, error) {
	fn, ok := c.lib.Predicate(n.Name)
	if !ok {
		return nil, fmt.Errorf("%w: condition %q", types.ErrUnknownFunction, n.Name)
	}
	if n.Property == "" {
		return nil, fmt.Errorf("%w: condition %q has no property", types.ErrMalformedRule, n.Name)
	}

	first := len(c.args)
	if err := c.pushPath(n.Property, n.Label); err != nil {
		return nil, err
	}
	propertyFields := IsPropertyVariant(n.Name)
	for _, f := range n.Fields {
		if s, ok := f.Value.(string); ok && propertyFields {
			if err := c.pushPath(s, ""); err != nil {
				return nil, err
			}
			continue
		}
		c.args = append(c.args, ArgDescriptor{Literal: f.Value})
	}

	return &predicateLeaf{name: n.Name, fn: fn, args: span(first, len(c.args))}, nil
}

func (c *compiler) compileCall(n *types.Node) (evalNode, error) {
	pred, isPred := c.lib.Predicate(n.Name)
	agg, isAgg := c.lib.Aggregate(n.Name)
	if !isPred && !isAgg {
		return nil, fmt.Errorf("%w: function %q", types.ErrUnknownFunction, n.Name)
	}

	first := len(c.args)
	switch {
	case n.HasArgs:
		for _, a := range n.Args {
			if a.IsLiteral {
				c.args = append(c.args, ArgDescriptor{Literal: a.Literal})
				continue
			}
			if err := c.pushPath(a.Path, ""); err != nil {
				return nil, err
			}
		}
	case n.Property != "":
		if err := c.pushPath(n.Property, n.Label); err != nil {
			return nil, err
		}
	default:
		c.args = append(c.args, ArgDescriptor{Subject: true})
	}

	idx := span(first, len(c.args))
	if isAgg {
		return &aggregateLeaf{name: n.Name, fn: agg, args: idx}, nil
	}
	return &predicateLeaf{name: n.Name, fn: pred, args: idx}, nil
}

func (c *compiler) pushPath(path, label string) error {
	segs, err := SplitPath(path)
	if err != nil {
		return fmt.Errorf("property %q: %w", path, err)
	}
	c.args = append(c.args, ArgDescriptor{Path: path, IsPath: true, Label: label, segs: segs})
	return nil
}

func span(from, to int) []int {
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return idx
}

// predicateLeaf invokes a record-level capability.
type predicateLeaf struct {
	name string
	fn   PredicateFunc
	args []int
}

func (l *predicateLeaf) eval(ctx context.Context, inv *invocation) (outcome, error) {
	ok, err := l.fn(ctx, inv.pick(l.args))
	if err != nil {
		return outcome{}, fmt.Errorf("%s: %w", l.name, err)
	}
	return outcome{pass: ok}, nil
}

// aggregateLeaf invokes a document-level capability.
type aggregateLeaf struct {
	name string
	fn   AggregateFunc
	args []int
}

func (l *aggregateLeaf) eval(ctx context.Context, inv *invocation) (outcome, error) {
	errs, err := l.fn(ctx, inv.doc, inv.pick(l.args))
	if err != nil {
		return outcome{}, fmt.Errorf("%s: %w", l.name, err)
	}
	return outcome{pass: len(errs) == 0, errs: errs}, nil
}
