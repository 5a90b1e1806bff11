package engine

import (
	"reflect"
	"testing"

	"github.com/solatis/editcheck/internal/types"
)

func record(p *Progress) *[]int {
	var got []int
	p.Subscribe(func(percent int) { got = append(got, percent) })
	return &got
}

func TestProgress_EveryTickWhenEstimateIsSmall(t *testing.T) {
	p := NewProgress()
	got := record(p)
	p.Estimate(types.EditQuality, nil, ScopeRules{Scope: types.ScopeHeader, Rules: 8})

	for i := 0; i < 4; i++ {
		p.PostTaskCompleted(1)
	}
	if want := []int{1, 2, 3, 4}; !reflect.DeepEqual(*got, want) {
		t.Errorf("notifications = %v, want %v", *got, want)
	}
}

func TestProgress_NoNotificationPastEstimate(t *testing.T) {
	p := NewProgress()
	got := record(p)
	p.Estimate(types.EditQuality, nil, ScopeRules{Scope: types.ScopeHeader, Rules: 1})

	p.PostTaskCompleted(1)
	p.PostTaskCompleted(1)
	if want := []int{1}; !reflect.DeepEqual(*got, want) {
		t.Errorf("notifications = %v, want %v", *got, want)
	}
}

func TestProgress_ThrottlesLargePasses(t *testing.T) {
	doc := manyDetails(1000)
	p := NewProgress()
	got := record(p)

	estimate := p.Estimate(types.EditValidity, doc, ScopeRules{Scope: types.ScopeDetail, Rules: 3})
	if estimate != 3000 {
		t.Fatalf("Estimate() = %d, want 3000", estimate)
	}
	_, _, throttle := p.State()
	if throttle != 30 {
		t.Fatalf("throttle = %d, want 30", throttle)
	}

	for i := 0; i < estimate; i++ {
		p.PostTaskCompleted(1)
	}
	if len(*got) != 100 {
		t.Fatalf("notifications = %d, want 100", len(*got))
	}
	if (*got)[0] != 1 || (*got)[99] != 100 {
		t.Errorf("first/last = %d/%d, want 1/100", (*got)[0], (*got)[99])
	}
}

func TestProgress_BulkIncrementCrossingSeveralSteps(t *testing.T) {
	p := NewProgress()
	got := record(p)
	p.Estimate(types.EditMacro, manyDetails(100), ScopeRules{Scope: types.ScopeDocument, Rules: 2})

	// Macro edits count details x 5 each: 1000 units, throttle 10.
	p.PostTaskCompleted(500)
	p.PostTaskCompleted(500)
	if want := []int{50, 100}; !reflect.DeepEqual(*got, want) {
		t.Errorf("notifications = %v, want %v", *got, want)
	}
}

func TestProgress_EstimateResetsCount(t *testing.T) {
	p := NewProgress()
	p.Estimate(types.EditQuality, nil, ScopeRules{Scope: types.ScopeHeader, Rules: 2})
	p.PostTaskCompleted(2)
	p.Estimate(types.EditQuality, nil, ScopeRules{Scope: types.ScopeHeader, Rules: 2})

	if count, estimate, _ := p.State(); count != 0 || estimate != 2 {
		t.Errorf("State() = %d/%d, want 0/2", count, estimate)
	}
	p.PostTaskCompleted(0)
	if count, _, _ := p.State(); count != 0 {
		t.Errorf("PostTaskCompleted(0) changed count to %d", count)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.IncrementEvaluations(types.ScopeDetail, types.EditQuality, 3)
	m.AddFailures(types.EditQuality, 1)
	m.ObserveEditDuration(types.ScopeDetail, 0)
}
