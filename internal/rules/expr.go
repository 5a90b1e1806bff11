// internal/rules/expr.go
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/solatis/editcheck/internal/types"
)

// exprCostLimit bounds a single satisfies() evaluation.
const exprCostLimit = 100_000

// exprCache compiles CEL expressions for the "satisfies" condition. The
// subject property is bound as `value`; extra fields are bound as `args`.
type exprCache struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newExprCache() (*exprCache, error) {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DynType),
		cel.Variable("args", cel.ListType(cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}
	return &exprCache{env: env, programs: make(map[string]cel.Program)}, nil
}

func (c *exprCache) program(expr string) (cel.Program, error) {
	c.mu.RLock()
	prg, ok := c.programs[expr]
	c.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := c.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: satisfies %q: %v", types.ErrMalformedRule, expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: satisfies %q must yield bool, got %s", types.ErrMalformedRule, expr, out)
	}
	prg, err := c.env.Program(ast, cel.CostLimit(exprCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: satisfies %q: %v", types.ErrMalformedRule, expr, err)
	}

	c.mu.Lock()
	c.programs[expr] = prg
	c.mu.Unlock()
	return prg, nil
}

// satisfies evaluates args[1] as a CEL expression over args[0]. Runtime errors
// (a non-numeric value passed to int(), a missing key) count as not satisfied.
func (c *exprCache) satisfies(_ context.Context, args []any) (bool, error) {
	if err := arity("satisfies", args, 2); err != nil {
		return false, err
	}
	expr, ok := args[1].(string)
	if !ok {
		return false, fmt.Errorf("%w: satisfies expression must be a string", types.ErrMalformedRule)
	}
	prg, err := c.program(expr)
	if err != nil {
		return false, err
	}

	extra := make([]any, 0, len(args)-2)
	extra = append(extra, args[2:]...)
	out, _, err := prg.Eval(map[string]any{"value": args[0], "args": extra})
	if err != nil {
		return false, nil
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
