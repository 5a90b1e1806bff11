package engine

import (
	"sync"

	"github.com/solatis/editcheck/internal/rules"
	"github.com/solatis/editcheck/internal/types"
)

// ProgressSteps is the target number of notifications per pass.
const ProgressSteps = 100

// ScopeRules pairs a scope with the number of edits a pass will run in it.
type ScopeRules struct {
	Scope types.Scope
	Rules int
}

// Progress counts completed evaluation units and notifies subscribers at
// coarse intervals. Listeners run while the progress lock is held and must not
// call back into Progress.
type Progress struct {
	mu        sync.Mutex
	count     int
	estimate  int
	throttle  int
	listeners []func(percent int)
}

// NewProgress returns an idle tracker.
func NewProgress() *Progress {
	return &Progress{throttle: 1}
}

// Subscribe registers fn for completion notifications.
func (p *Progress) Subscribe(fn func(percent int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Estimate computes the unit total for a pass over the given scopes, resets
// the counter and derives the notification throttle.
func (p *Progress) Estimate(editType types.EditType, doc *types.Document, scopes ...ScopeRules) int {
	details := 0
	if doc != nil {
		details = len(doc.Details)
	}
	total := 0
	for _, s := range scopes {
		total += rules.EstimateUnits(s.Scope, editType, s.Rules, details)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.estimate = total
	p.throttle = max(1, total/ProgressSteps)
	p.count = 0
	return total
}

// PostTaskCompleted adds n units. A notification fires each time the count
// crosses a multiple of the throttle, until the estimate has been reached.
func (p *Progress) PostTaskCompleted(n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.count
	p.count += n
	if prev >= p.estimate || p.count/p.throttle == prev/p.throttle {
		return
	}
	percent := min(ProgressSteps, p.count/p.throttle)
	for _, fn := range p.listeners {
		fn(percent)
	}
}

// State returns the current count, estimate and throttle.
func (p *Progress) State() (count, estimate, throttle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count, p.estimate, p.throttle
}
