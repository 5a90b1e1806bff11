// internal/rules/evaluate_test.go
package rules

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/solatis/editcheck/internal/types"
)

func compileOrFail(t *testing.T, lib *Library, rule *types.Node) *CompiledPredicate {
	t.Helper()
	p, err := Compile(rule, lib)
	if err != nil {
		t.Fatalf("Compile() error = %v, want nil", err)
	}
	return p
}

func detailDocument() *types.Document {
	return &types.Document{
		Header: types.NewRecord(1, map[string]any{"recordID": "1", "respondentID": "0000012345"}),
		Details: types.Records{
			types.NewRecord(2, map[string]any{"recordID": "2", "loanNumber": "A1", "universalLoanId": "ULI-A1"}),
			types.NewRecord(3, map[string]any{"recordID": "1", "loanNumber": "A2", "universalLoanId": "ULI-A2"}),
		},
	}
}

func TestEvaluate_DetailRecordIDScenario(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	p := compileOrFail(t, lib, types.Condition("recordID", "equal", types.F("value", "2")))

	var entries []types.ErrorEntry
	for _, d := range doc.Details {
		res, err := Evaluate(context.Background(), p, d, doc)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		entries = append(entries, res.Errors...)
	}

	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	got := entries[0]
	if got.LineNumber != 3 {
		t.Errorf("LineNumber = %d, want 3", got.LineNumber)
	}
	if got.LoanNumber != "A2" || got.UniversalLoanID != "ULI-A2" {
		t.Errorf("identity = (%q, %q), want (A2, ULI-A2)", got.LoanNumber, got.UniversalLoanID)
	}
	if !reflect.DeepEqual(got.Properties, map[string]any{"recordID": "1"}) {
		t.Errorf("Properties = %v, want recordID=1", got.Properties)
	}
}

func TestEvaluate_EmptyDocumentScenario(t *testing.T) {
	lib := mustLibrary(t)
	doc := &types.Document{Header: types.NewRecord(1, map[string]any{"recordID": "1"})}
	rule := types.Condition("details.length", "greater_than", types.F("value", 0)).WithLabel("Total records")
	p := compileOrFail(t, lib, rule)

	res, err := Evaluate(context.Background(), p, doc, doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(res.Errors))
	}
	e := res.Errors[0]
	if e.LineNumber != 0 {
		t.Errorf("LineNumber = %d, want 0", e.LineNumber)
	}
	if v, ok := e.Properties["Total records"]; !ok || v != 0 {
		t.Errorf("Properties[Total records] = %v (present %v), want 0", v, ok)
	}
}

func TestEvaluate_PassYieldsNoEntries(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	p := compileOrFail(t, lib, types.Condition("respondentID", "equal_property", types.F("other", "header.respondentID")))

	doc.Details[0].Fields["respondentID"] = "0000012345"
	res, err := Evaluate(context.Background(), p, doc.Details[0], doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !res.Pass() {
		t.Errorf("Pass() = false, errors = %v", res.Errors)
	}
}

func TestEvaluate_SynthesizedEntryUsesLabels(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	rule := types.Condition("respondentID", "equal_property", types.F("other", "header.respondentID")).
		WithLabel("Detail respondent")
	p := compileOrFail(t, lib, rule)

	d := doc.Details[0]
	d.Fields["respondentID"] = "0000099999"
	res, err := Evaluate(context.Background(), p, d, doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := map[string]any{
		"Detail respondent":   "0000099999",
		"header.respondentID": "0000012345",
	}
	if len(res.Errors) != 1 || !reflect.DeepEqual(res.Errors[0].Properties, want) {
		t.Errorf("Errors = %+v, want properties %v", res.Errors, want)
	}
}

func TestEvaluate_Combinators(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	subject := doc.Details[0] // recordID "2", loanNumber "A1"

	pass := types.Condition("recordID", "equal", types.F("value", "2"))
	fail := types.Condition("recordID", "equal", types.F("value", "9"))

	tests := []struct {
		name     string
		rule     *types.Node
		wantPass bool
	}{
		{"and all pass", types.And(pass, pass), true},
		{"and one fails", types.And(pass, fail), false},
		{"or one passes", types.Or(fail, pass), true},
		{"or all fail", types.Or(fail, fail), false},
		{"if antecedent fails", types.If(fail, fail), true},
		{"if antecedent passes then passes", types.If(pass, pass), true},
		{"if antecedent passes then fails", types.If(pass, fail), false},
		{"nested", types.And(types.Or(fail, pass), types.If(pass, types.And(pass, pass))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := compileOrFail(t, lib, tt.rule)
			res, err := Evaluate(context.Background(), p, subject, doc)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Pass() != tt.wantPass {
				t.Errorf("Pass() = %v, want %v", res.Pass(), tt.wantPass)
			}
		})
	}
}

func TestEvaluate_AndMergesLeafProperties(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	rule := types.And(
		types.Condition("recordID", "equal", types.F("value", "2")),
		types.Condition("loanNumber", "equal", types.F("value", "zzz")),
		types.Condition("header.respondentID", "not_empty"),
	)
	p := compileOrFail(t, lib, rule)

	res, err := Evaluate(context.Background(), p, doc.Details[0], doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(res.Errors) != 1 {
		t.Fatalf("len(Errors) = %d, want 1", len(res.Errors))
	}
	want := map[string]any{
		"recordID":            "2",
		"loanNumber":          "A1",
		"header.respondentID": "0000012345",
	}
	if !reflect.DeepEqual(res.Errors[0].Properties, want) {
		t.Errorf("Properties = %v, want %v", res.Errors[0].Properties, want)
	}
	if res.Errors[0].LineNumber != 2 {
		t.Errorf("LineNumber = %d, want 2", res.Errors[0].LineNumber)
	}
}

func TestEvaluate_IfWithFailingAntecedentPasses(t *testing.T) {
	lib := mustLibrary(t)
	rule := types.If(
		types.Condition("flag", "is_true"),
		types.Condition("other", "is_false"),
	)
	p := compileOrFail(t, lib, rule)

	for _, other := range []any{true, false, "x", 42, nil} {
		subject := types.NewRecord(2, map[string]any{"flag": false, "other": other})
		res, err := Evaluate(context.Background(), p, subject, &types.Document{})
		if err != nil {
			t.Fatalf("Evaluate(other=%v) error = %v", other, err)
		}
		if !res.Pass() || len(res.Errors) != 0 {
			t.Errorf("Evaluate(other=%v) = %+v, want pass with no entries", other, res)
		}
	}
}

func TestEvaluate_NoShortCircuit(t *testing.T) {
	lib := NewLibrary()
	var calls atomic.Int32
	counting := func(result bool) PredicateFunc {
		return func(context.Context, []any) (bool, error) {
			calls.Add(1)
			return result, nil
		}
	}
	if err := lib.RegisterPredicate("yes", counting(true)); err != nil {
		t.Fatal(err)
	}
	if err := lib.RegisterPredicate("no", counting(false)); err != nil {
		t.Fatal(err)
	}

	doc := detailDocument()
	rule := types.And(
		types.If(types.Call("no", "recordID"), types.Call("no", "recordID")),
		types.Or(types.Call("yes", "recordID"), types.Call("no", "recordID")),
	)
	p := compileOrFail(t, lib, rule)
	if _, err := Evaluate(context.Background(), p, doc.Details[0], doc); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("capability calls = %d, want 4", got)
	}
}

func TestEvaluate_DocumentAggregatesVerbatim(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	doc.Details = append(doc.Details, types.NewRecord(4, map[string]any{"recordID": "2", "loanNumber": "A1"}))

	p := compileOrFail(t, lib, types.Call("hasUniqueLoanNumbers", ""))
	res, err := Evaluate(context.Background(), p, doc, doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(res.Errors) != 2 {
		t.Fatalf("len(Errors) = %d, want 2", len(res.Errors))
	}
	if res.Errors[0].LineNumber != 2 || res.Errors[1].LineNumber != 4 {
		t.Errorf("line numbers = %d,%d, want 2,4", res.Errors[0].LineNumber, res.Errors[1].LineNumber)
	}
}

func TestEvaluate_AndConcatenatesAggregateErrors(t *testing.T) {
	lib := NewLibrary()
	fixed := func(line int) AggregateFunc {
		return func(context.Context, *types.Document, []any) ([]types.ErrorEntry, error) {
			return []types.ErrorEntry{{LineNumber: line, Properties: map[string]any{}}}, nil
		}
	}
	if err := lib.RegisterAggregate("first", fixed(10)); err != nil {
		t.Fatal(err)
	}
	if err := lib.RegisterAggregate("second", fixed(20)); err != nil {
		t.Fatal(err)
	}

	doc := detailDocument()
	p := compileOrFail(t, lib, types.And(types.Call("first", ""), types.Call("second", "")))
	res, err := Evaluate(context.Background(), p, doc, doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(res.Errors) != 2 || res.Errors[0].LineNumber != 10 || res.Errors[1].LineNumber != 20 {
		t.Errorf("Errors = %+v, want lines [10 20] in child order", res.Errors)
	}
}

func TestEvaluate_DocumentFailureWithoutAggregateErrors(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	p := compileOrFail(t, lib, types.Condition("header.recordID", "equal", types.F("value", "9")))

	res, err := Evaluate(context.Background(), p, doc, doc)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Properties["header.recordID"] != "1" {
		t.Errorf("Errors = %+v, want synthesized entry", res.Errors)
	}
}

func TestEvaluate_UnresolvedArgument(t *testing.T) {
	lib := mustLibrary(t)
	doc := detailDocument()
	p := compileOrFail(t, lib, types.Condition("actionTaken", "not_empty"))

	_, err := Evaluate(context.Background(), p, doc.Details[0], doc)
	if !errors.Is(err, types.ErrUnresolvedArgument) {
		t.Errorf("Evaluate() error = %v, want ErrUnresolvedArgument", err)
	}
}

func TestEvaluate_CapabilityErrorPropagates(t *testing.T) {
	lib := NewLibrary()
	if err := lib.RegisterPredicate("remote", func(context.Context, []any) (bool, error) {
		return false, types.ErrConnectivity
	}); err != nil {
		t.Fatal(err)
	}

	doc := detailDocument()
	p := compileOrFail(t, lib, types.Or(types.Call("remote", "recordID"), types.Call("remote", "loanNumber")))
	_, err := Evaluate(context.Background(), p, doc.Details[0], doc)
	if !errors.Is(err, types.ErrConnectivity) {
		t.Errorf("Evaluate() error = %v, want ErrConnectivity", err)
	}
}

func TestEvaluate_SubjectArgument(t *testing.T) {
	lib := NewLibrary()
	var seen any
	if err := lib.RegisterPredicate("inspect", func(_ context.Context, args []any) (bool, error) {
		seen = args[0]
		return true, nil
	}); err != nil {
		t.Fatal(err)
	}

	doc := detailDocument()
	p := compileOrFail(t, lib, types.Call("inspect", ""))
	if _, err := Evaluate(context.Background(), p, doc.Details[1], doc); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if seen != doc.Details[1] {
		t.Errorf("subject argument = %v, want the detail record", seen)
	}
}
