package rules

import (
	"testing"

	"github.com/solatis/editcheck/internal/types"
)

func TestEstimateUnits(t *testing.T) {
	tests := []struct {
		name     string
		scope    types.Scope
		editType types.EditType
		rules    int
		details  int
		want     int
	}{
		{"detail scope multiplies by records", types.ScopeDetail, types.EditValidity, 3, 10, 30},
		{"special multiplies by records", types.ScopeDocument, types.EditSpecial, 2, 10, 20},
		{"macro applies fan-out factor", types.ScopeDocument, types.EditMacro, 2, 10, 2 * 10 * MacroFanoutFactor},
		{"header scope counts rules", types.ScopeHeader, types.EditSyntactical, 4, 10, 4},
		{"document quality counts rules", types.ScopeDocument, types.EditQuality, 1, 10, 1},
		{"no details", types.ScopeDetail, types.EditSyntactical, 5, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateUnits(tt.scope, tt.editType, tt.rules, tt.details)
			if got != tt.want {
				t.Errorf("EstimateUnits() = %d, want %d", got, tt.want)
			}
		})
	}
}
