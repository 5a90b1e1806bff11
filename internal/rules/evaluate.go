// internal/rules/evaluate.go
package rules

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/editcheck/internal/types"
)

/*
 * Predicate execution.
 *
 * Evaluates a CompiledPredicate against one subject (a header or detail
 * record, or the whole document) and turns the outcome into error entries.
 *
 * Evaluation flow:
 *   1. Resolve every argument descriptor up front against the context chain
 *      [subject, document]. Any unresolved path aborts with
 *      *types.UnresolvedArgumentError
 *   2. Evaluate the node tree. Children of And/Or/If are issued together and
 *      joined; there is no short-circuit, so every capability sees its call
 *   3. Combine: And fails if any child fails and concatenates child error
 *      lists; Or passes if any child passes; If passes when its antecedent
 *      fails, else yields the consequent
 *   4. Pass yields no entries. A failing document-scope evaluation whose
 *      aggregates produced entries returns them verbatim. Otherwise one entry
 *      is synthesized from the subject's identity plus every resolved path
 *      argument keyed by label or path
 */

// Result is the outcome of one evaluation. Pass when Errors is empty.
type Result struct {
	Errors []types.ErrorEntry
}

// Pass reports whether the subject satisfied the predicate.
func (r Result) Pass() bool {
	return len(r.Errors) == 0
}

// outcome is the intermediate result of one node.
type outcome struct {
	pass bool
	errs []types.ErrorEntry
}

type evalNode interface {
	eval(ctx context.Context, inv *invocation) (outcome, error)
}

// invocation carries resolved argument values for one evaluation.
type invocation struct {
	values []any
	doc    *types.Document
}

func (inv *invocation) pick(idx []int) []any {
	out := make([]any, len(idx))
	for i, j := range idx {
		out[i] = inv.values[j]
	}
	return out
}

// Evaluate runs p against subject. doc is the enclosing document; pass the
// document itself as subject for document-scope edits.
func Evaluate(ctx context.Context, p *CompiledPredicate, subject types.Lookup, doc *types.Document) (Result, error) {
	contexts := []types.Lookup{subject}
	if doc != nil && subject != types.Lookup(doc) {
		contexts = append(contexts, doc)
	}

	values := make([]any, len(p.args))
	for i, a := range p.args {
		switch {
		case a.Subject:
			values[i] = subject
		case a.IsPath:
			v, err := resolveChain(a.Path, a.segs, contexts)
			if err != nil {
				return Result{}, err
			}
			values[i] = v
		default:
			values[i] = a.Literal
		}
	}

	out, err := p.root.eval(ctx, &invocation{values: values, doc: doc})
	if err != nil {
		return Result{}, err
	}
	if out.pass {
		return Result{}, nil
	}

	_, documentScope := subject.(*types.Document)
	if documentScope && len(out.errs) > 0 {
		return Result{Errors: out.errs}, nil
	}

	rec, _ := subject.(*types.Record)
	entry := types.EntryFor(rec)
	for i, a := range p.args {
		if a.IsPath {
			entry.Properties[a.Key()] = values[i]
		}
	}
	return Result{Errors: []types.ErrorEntry{entry}}, nil
}

// evalAll evaluates every child concurrently and joins in child order.
func evalAll(ctx context.Context, inv *invocation, children []evalNode) ([]outcome, error) {
	results := make([]outcome, len(children))
	if len(children) == 1 {
		o, err := children[0].eval(ctx, inv)
		results[0] = o
		return results, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, child := range children {
		g.Go(func() error {
			o, err := child.eval(gctx, inv)
			if err != nil {
				return err
			}
			results[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type andNode struct {
	children []evalNode
}

func (n *andNode) eval(ctx context.Context, inv *invocation) (outcome, error) {
	results, err := evalAll(ctx, inv, n.children)
	if err != nil {
		return outcome{}, err
	}
	out := outcome{pass: true}
	for _, r := range results {
		if !r.pass {
			out.pass = false
		}
		out.errs = append(out.errs, r.errs...)
	}
	if out.pass {
		out.errs = nil
	}
	return out, nil
}

type orNode struct {
	children []evalNode
}

func (n *orNode) eval(ctx context.Context, inv *invocation) (outcome, error) {
	results, err := evalAll(ctx, inv, n.children)
	if err != nil {
		return outcome{}, err
	}
	var errs []types.ErrorEntry
	for _, r := range results {
		if r.pass {
			return outcome{pass: true}, nil
		}
		errs = append(errs, r.errs...)
	}
	return outcome{errs: errs}, nil
}

// ternaryNode is (cond ? then : true).
type ternaryNode struct {
	cond evalNode
	then evalNode
}

func (n *ternaryNode) eval(ctx context.Context, inv *invocation) (outcome, error) {
	results, err := evalAll(ctx, inv, []evalNode{n.cond, n.then})
	if err != nil {
		return outcome{}, err
	}
	if !results[0].pass {
		return outcome{pass: true}, nil
	}
	return results[1], nil
}
