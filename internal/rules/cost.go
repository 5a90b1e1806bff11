// internal/rules/cost.go
package rules

import "github.com/solatis/editcheck/internal/types"

/*
 * Evaluation unit model.
 *
 * Progress reporting needs to know up front how many evaluations a run will
 * perform. One unit is one compiled-predicate evaluation, or one estimated
 * slice of aggregate work.
 *
 * Unit counts per edit:
 *   - detail scope, or special type: one per detail record
 *   - macro type: details * MacroFanoutFactor (aggregates walk every record
 *     and may fan out lookups)
 *   - everything else: one
 */

// MacroFanoutFactor weights macro edits, which scan all detail records and
// may issue several lookups per record.
const MacroFanoutFactor = 5

// UnitsPerEdit returns the evaluation units one edit of the given scope and
// type contributes for a document with detailCount records.
func UnitsPerEdit(scope types.Scope, editType types.EditType, detailCount int) int {
	switch {
	case scope == types.ScopeDetail || editType == types.EditSpecial:
		return detailCount
	case editType == types.EditMacro:
		return detailCount * MacroFanoutFactor
	default:
		return 1
	}
}

// EstimateUnits totals UnitsPerEdit over ruleCount edits.
func EstimateUnits(scope types.Scope, editType types.EditType, ruleCount, detailCount int) int {
	return ruleCount * UnitsPerEdit(scope, editType, detailCount)
}
