package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/solatis/editcheck/internal/types"
)

func TestBuiltinConditions(t *testing.T) {
	lib := mustLibrary(t)

	tests := []struct {
		name string
		fn   string
		args []any
		want bool
	}{
		{"equal strings", "equal", []any{"2", "2"}, true},
		{"equal keeps leading zeros", "equal", []any{"0012", "12"}, false},
		{"equal int and numeric string", "equal", []any{2, "2"}, true},
		{"equal int and float", "equal", []any{0, float64(0)}, true},
		{"equal nil and empty", "equal", []any{nil, ""}, false},
		{"not_equal", "not_equal", []any{"1", "2"}, true},
		{"equal_property", "equal_property", []any{"A", "A"}, true},
		{"greater_than numeric string", "greater_than", []any{"10", float64(9)}, true},
		{"greater_than zero length", "greater_than", []any{0, float64(0)}, false},
		{"greater_than non-numeric", "greater_than", []any{"abc", float64(1)}, false},
		{"greater_than_or_equal", "greater_than_or_equal", []any{"5", "5"}, true},
		{"less_than", "less_than", []any{"4", 5}, true},
		{"less_than_or_equal_property", "less_than_or_equal_property", []any{"6", "5"}, false},
		{"between inside", "between", []any{"5", "1", "10"}, true},
		{"between bound", "between", []any{"10", "1", "10"}, true},
		{"between outside", "between", []any{"11", "1", "10"}, false},
		{"is_in", "is_in", []any{"3", []any{"1", "2", "3"}}, true},
		{"is_in missing", "is_in", []any{"4", []any{"1", "2", "3"}}, false},
		{"not_in", "not_in", []any{"4", []any{"1", "2", "3"}}, true},
		{"is_empty blank", "is_empty", []any{"   "}, true},
		{"is_empty nil", "is_empty", []any{nil}, true},
		{"is_empty value", "is_empty", []any{"x"}, false},
		{"not_empty", "not_empty", []any{"x"}, true},
		{"is_integer padded", "is_integer", []any{"0012"}, true},
		{"is_integer decimal", "is_integer", []any{"1.5"}, false},
		{"is_integer float", "is_integer", []any{float64(3)}, true},
		{"is_numeric", "is_numeric", []any{"1.5"}, true},
		{"is_numeric NA", "is_numeric", []any{"NA"}, false},
		{"is_numeric NaN", "is_numeric", []any{"NaN"}, false},
		{"is_numeric Inf", "is_numeric", []any{"Inf"}, false},
		{"is_numeric digit separators", "is_numeric", []any{"1_000"}, false},
		{"greater_than Inf", "greater_than", []any{"Inf", 1000}, false},
		{"less_than NaN", "less_than", []any{"NaN", 1000}, false},
		{"is_date", "is_date", []any{"20170131"}, true},
		{"is_date bad month", "is_date", []any{"20171301"}, false},
		{"is_date dashed", "is_date", []any{"2017-01-31"}, false},
		{"is_true string", "is_true", []any{"TRUE"}, true},
		{"is_true garbage", "is_true", []any{"yes"}, false},
		{"is_false bool", "is_false", []any{false}, true},
		{"starts_with", "starts_with", []any{"0000012345", "0000"}, true},
		{"ends_with", "ends_with", []any{"0000012345", "45"}, true},
		{"matches_regex", "matches_regex", []any{"ABC123", "^[A-Z]+[0-9]+$"}, true},
		{"matches_regex miss", "matches_regex", []any{"abc", "^[0-9]+$"}, false},
		{"satisfies", "satisfies", []any{"5", "int(value) > 3"}, true},
		{"satisfies size", "satisfies", []any{"abc", "size(value) == 3"}, true},
		{"satisfies runtime error", "satisfies", []any{"NA", "int(value) > 3"}, false},
		{"satisfies extra args", "satisfies", []any{"7", "value in args", "5", "7"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, ok := lib.Predicate(tt.fn)
			if !ok {
				t.Fatalf("Predicate(%q) not registered", tt.fn)
			}
			got, err := fn(context.Background(), tt.args)
			if err != nil {
				t.Fatalf("%s(%v) error = %v", tt.fn, tt.args, err)
			}
			if got != tt.want {
				t.Errorf("%s(%v) = %v, want %v", tt.fn, tt.args, got, tt.want)
			}
		})
	}
}

func TestBuiltinConditions_RuleSpecErrors(t *testing.T) {
	lib := mustLibrary(t)

	tests := []struct {
		name string
		fn   string
		args []any
	}{
		{"missing field", "equal", []any{"2"}},
		{"between missing end", "between", []any{"5", "1"}},
		{"bad regex", "matches_regex", []any{"x", "("}},
		{"non-string pattern", "matches_regex", []any{"x", float64(1)}},
		{"bad expression", "satisfies", []any{"x", "value >"}},
		{"non-bool expression", "satisfies", []any{"x", "1 + 2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, _ := lib.Predicate(tt.fn)
			_, err := fn(context.Background(), tt.args)
			if !errors.Is(err, types.ErrMalformedRule) {
				t.Errorf("%s(%v) error = %v, want ErrMalformedRule", tt.fn, tt.args, err)
			}
		})
	}
}

func TestLibrary_DuplicateRegistration(t *testing.T) {
	lib := mustLibrary(t)

	err := lib.RegisterPredicate("equal", func(context.Context, []any) (bool, error) { return true, nil })
	if !errors.Is(err, types.ErrDuplicateFunction) {
		t.Errorf("RegisterPredicate(equal) error = %v, want ErrDuplicateFunction", err)
	}
	err = lib.RegisterAggregate("is_empty", func(context.Context, *types.Document, []any) ([]types.ErrorEntry, error) {
		return nil, nil
	})
	if !errors.Is(err, types.ErrDuplicateFunction) {
		t.Errorf("RegisterAggregate(is_empty) error = %v, want ErrDuplicateFunction", err)
	}
}

func TestHasUniqueLoanNumbers(t *testing.T) {
	doc := &types.Document{Details: types.Records{
		types.NewRecord(2, map[string]any{"loanNumber": "A1"}),
		types.NewRecord(3, map[string]any{}),
		types.NewRecord(4, map[string]any{"loanNumber": ""}),
		types.NewRecord(5, map[string]any{"loanNumber": "A1"}),
		types.NewRecord(6, map[string]any{"loanNumber": "B2"}),
	}}

	errs, err := hasUniqueLoanNumbers(context.Background(), doc, nil)
	if err != nil {
		t.Fatalf("hasUniqueLoanNumbers() error = %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2 (missing loan numbers are not duplicates): %+v", len(errs), errs)
	}
	for i, line := range []int{2, 5} {
		if errs[i].LineNumber != line || errs[i].Properties["loanNumber"] != "A1" {
			t.Errorf("errs[%d] = %+v, want line %d loanNumber A1", i, errs[i], line)
		}
	}
}

func TestMaxProportion(t *testing.T) {
	doc := &types.Document{Details: types.Records{
		types.NewRecord(2, map[string]any{"actionTaken": "4"}),
		types.NewRecord(3, map[string]any{"actionTaken": "4"}),
		types.NewRecord(4, map[string]any{"actionTaken": "4"}),
		types.NewRecord(5, map[string]any{"actionTaken": "1"}),
	}}

	errs, err := maxProportion(context.Background(), doc, []any{"actionTaken", "4", 0.5})
	if err != nil {
		t.Fatalf("maxProportion() error = %v", err)
	}
	if len(errs) != 1 {
		t.Fatalf("len(errs) = %d, want 1", len(errs))
	}
	if errs[0].Properties["Proportion"] != 0.75 || errs[0].Properties["Total records"] != 4 {
		t.Errorf("Properties = %v", errs[0].Properties)
	}

	errs, err = maxProportion(context.Background(), doc, []any{"actionTaken", "4", 0.8})
	if err != nil || len(errs) != 0 {
		t.Errorf("maxProportion(limit 0.8) = %v, %v, want pass", errs, err)
	}

	errs, err = maxProportion(context.Background(), &types.Document{}, []any{"actionTaken", "4", 0.1})
	if err != nil || len(errs) != 0 {
		t.Errorf("maxProportion(empty) = %v, %v, want pass", errs, err)
	}
}
