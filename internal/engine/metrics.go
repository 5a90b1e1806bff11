package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/solatis/editcheck/internal/types"
)

// Metrics provides observability for validation runs. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Predicate evaluations by scope and edit type
	Evaluations *prometheus.CounterVec

	// Error entries produced, by edit type
	EditFailures *prometheus.CounterVec

	// Wall time of one edit across all its subjects
	EditDuration *prometheus.HistogramVec
}

// NewMetrics registers the engine metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editcheck_evaluations_total",
			Help: "Total predicate evaluations by scope and edit type",
		}, []string{"scope", "edit_type"}),

		EditFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editcheck_edit_failures_total",
			Help: "Total error entries produced by edit type",
		}, []string{"edit_type"}),

		EditDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "editcheck_edit_duration_seconds",
			Help:    "Duration of one edit across all of its subjects",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"scope"}),
	}
}

// IncrementEvaluations records n evaluations.
func (m *Metrics) IncrementEvaluations(scope types.Scope, editType types.EditType, n int) {
	if m != nil {
		m.Evaluations.WithLabelValues(string(scope), string(editType)).Add(float64(n))
	}
}

// AddFailures records n error entries.
func (m *Metrics) AddFailures(editType types.EditType, n int) {
	if m != nil && n > 0 {
		m.EditFailures.WithLabelValues(string(editType)).Add(float64(n))
	}
}

// ObserveEditDuration records the wall time of one edit.
func (m *Metrics) ObserveEditDuration(scope types.Scope, d time.Duration) {
	if m != nil {
		m.EditDuration.WithLabelValues(string(scope)).Observe(d.Seconds())
	}
}
