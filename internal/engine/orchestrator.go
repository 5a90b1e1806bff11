package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/editcheck/internal/rules"
	"github.com/solatis/editcheck/internal/types"
)

/*
 * Batch orchestration.
 *
 * A pass runs every edit of one (scope, edit type) in catalog order. Edits
 * run strictly one after another; only the evaluation of one edit across its
 * subjects fans out, bounded by the record concurrency. Aggregates receive
 * the aggregate concurrency through ctx (rules.WithFanOutLimit).
 *
 * Subjects per scope:
 *   - ts:   the header record
 *   - lar:  every detail record
 *   - hmda: the document itself
 *
 * Failure handling:
 *   - cancellation: no new evaluation is scheduled and nothing is folded once
 *     ctx is done; the caller gets types.ErrCanceled
 *   - connectivity: the first lookup failure aborts the pass
 *   - rule spec (unknown function, unresolved path): *types.RuleSpecError
 *     naming the edit
 * Entries folded before a failure stay in the collection.
 */

// Run executes every scope for editType. Progress is estimated once across
// all scopes before the first edit runs.
func (s *Session) Run(ctx context.Context, editType types.EditType) error {
	type pass struct {
		scope types.Scope
		edits []types.Edit
	}

	passes := make([]pass, 0, len(types.AllScopes))
	counts := make([]ScopeRules, 0, len(types.AllScopes))
	for _, scope := range types.AllScopes {
		edits, err := s.edits(ctx, scope, editType)
		if err != nil {
			return fmt.Errorf("failed to load %s/%s edits: %w", scope, editType, err)
		}
		passes = append(passes, pass{scope: scope, edits: edits})
		counts = append(counts, ScopeRules{Scope: scope, Rules: len(edits)})
	}

	estimate := s.progress.Estimate(editType, s.doc, counts...)
	s.logger.Info("validation started", "edit_type", editType, "estimate", estimate, "details", len(s.doc.Details))

	for _, p := range passes {
		if err := s.runEdits(ctx, p.scope, editType, p.edits); err != nil {
			return err
		}
	}

	s.logger.Info("validation finished", "edit_type", editType, "errors", s.errors.Len())
	return nil
}

// RunScope executes the edits of one scope and type.
func (s *Session) RunScope(ctx context.Context, scope types.Scope, editType types.EditType) error {
	edits, err := s.edits(ctx, scope, editType)
	if err != nil {
		return fmt.Errorf("failed to load %s/%s edits: %w", scope, editType, err)
	}
	s.progress.Estimate(editType, s.doc, ScopeRules{Scope: scope, Rules: len(edits)})
	return s.runEdits(ctx, scope, editType, edits)
}

// RunSingleRecord validates one detail record against the detail-scope edits
// of editType. The record is evaluated inside a document holding the session
// header and only that record; results go to a fresh collection.
func (s *Session) RunSingleRecord(ctx context.Context, editType types.EditType, rec *types.Record) (*types.ErrorCollection, error) {
	if rec == nil {
		return nil, fmt.Errorf("record cannot be nil")
	}
	var header *types.Record
	if s.doc != nil {
		header = s.doc.Header
	}
	single := s.fork(&types.Document{Header: header, Details: types.Records{rec}})
	if err := single.RunScope(ctx, types.ScopeDetail, editType); err != nil {
		return single.errors, err
	}
	return single.errors, nil
}

func (s *Session) runEdits(ctx context.Context, scope types.Scope, editType types.EditType, edits []types.Edit) error {
	ctx = rules.WithFanOutLimit(ctx, s.aggregateConcurrency)
	for i := range edits {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrCanceled, err)
		}
		if err := s.runEdit(ctx, scope, editType, &edits[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) runEdit(ctx context.Context, scope types.Scope, editType types.EditType, edit *types.Edit) error {
	start := time.Now()

	pred, err := s.engine.CompileEdit(edit)
	if err != nil {
		return err
	}

	subjects := s.subjects(scope)
	before := s.errors.Len()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.recordConcurrency)
	for _, subject := range subjects {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := rules.Evaluate(gctx, pred, subject, s.doc)
			if err != nil {
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			s.errors.Append(editType, edit, res.Errors...)
			if scope == types.ScopeDetail {
				s.progress.PostTaskCompleted(1)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return s.classify(ctx, edit, err)
	}

	if scope != types.ScopeDetail {
		s.progress.PostTaskCompleted(rules.UnitsPerEdit(scope, editType, len(s.doc.Details)))
	}

	elapsed := time.Since(start)
	failures := s.errors.Len() - before
	s.metrics.IncrementEvaluations(scope, editType, len(subjects))
	s.metrics.AddFailures(editType, failures)
	s.metrics.ObserveEditDuration(scope, elapsed)
	s.logger.Debug("edit evaluated",
		"edit_id", edit.ID,
		"scope", scope,
		"edit_type", editType,
		"subjects", len(subjects),
		"errors", failures,
		"duration", elapsed)
	return nil
}

// classify maps an evaluation failure to the error the caller sees.
func (s *Session) classify(ctx context.Context, edit *types.Edit, err error) error {
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%w: %w", types.ErrCanceled, ctx.Err())
	case errors.Is(err, types.ErrConnectivity):
		s.logger.Error("lookup unreachable", "edit_id", edit.ID, "error", err)
		return fmt.Errorf("edit %s: %w", edit.ID, err)
	case types.IsRuleSpec(err):
		var rse *types.RuleSpecError
		if errors.As(err, &rse) {
			return err
		}
		s.logger.Error("rule specification error", "edit_id", edit.ID, "error", err)
		return &types.RuleSpecError{EditID: edit.ID, Err: err}
	default:
		return fmt.Errorf("edit %s: %w", edit.ID, err)
	}
}

func (s *Session) subjects(scope types.Scope) []types.Lookup {
	switch scope {
	case types.ScopeHeader:
		if s.doc.Header == nil {
			return nil
		}
		return []types.Lookup{s.doc.Header}
	case types.ScopeDetail:
		out := make([]types.Lookup, len(s.doc.Details))
		for i, d := range s.doc.Details {
			out[i] = d
		}
		return out
	default:
		return []types.Lookup{s.doc}
	}
}
