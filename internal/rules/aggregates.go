package rules

import (
	"context"
	"fmt"

	"github.com/solatis/editcheck/internal/types"
)

// hasUniqueLoanNumbers reports every detail whose loan number appears more
// than once, in detail order. Details without a loan number are left to the
// presence edits and never count as duplicates.
func hasUniqueLoanNumbers(_ context.Context, doc *types.Document, _ []any) ([]types.ErrorEntry, error) {
	if doc == nil {
		return nil, nil
	}
	counts := make(map[string]int, len(doc.Details))
	for _, d := range doc.Details {
		if ln := d.LoanNumber(); ln != "" {
			counts[ln]++
		}
	}

	var errs []types.ErrorEntry
	for _, d := range doc.Details {
		ln := d.LoanNumber()
		if ln == "" || counts[ln] < 2 {
			continue
		}
		e := types.EntryFor(d)
		e.Properties[types.FieldLoanNumber] = ln
		errs = append(errs, e)
	}
	return errs, nil
}

// maxProportion fails when more than limit (0..1) of the details have
// property equal to value. Arguments: property name, value, limit.
func maxProportion(_ context.Context, doc *types.Document, args []any) ([]types.ErrorEntry, error) {
	if err := arity("maxProportion", args, 3); err != nil {
		return nil, err
	}
	property, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: maxProportion property must be a string", types.ErrMalformedRule)
	}
	limit, ok := coerceNumeric(args[2])
	if !ok {
		return nil, fmt.Errorf("%w: maxProportion limit must be numeric", types.ErrMalformedRule)
	}
	if doc == nil || len(doc.Details) == 0 {
		return nil, nil
	}

	matching := 0
	for _, d := range doc.Details {
		if v, ok := d.Lookup(property); ok && compareEqual(v, args[1]) {
			matching++
		}
	}
	total := len(doc.Details)
	proportion := float64(matching) / float64(total)
	if proportion <= limit {
		return nil, nil
	}

	e := types.EntryFor(nil)
	e.Properties["Total records"] = total
	e.Properties["Matching records"] = matching
	e.Properties["Proportion"] = proportion
	e.Properties["Maximum proportion"] = limit
	return []types.ErrorEntry{e}, nil
}
