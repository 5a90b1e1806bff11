// Package engine runs compiled edits across a filing document.
//
// A Session owns everything one validation run mutates: the document, the
// error collection, and the progress tracker. Sessions share a rules.Engine
// (and with it the compile cache) but nothing else, so concurrent sessions
// never observe each other's results.
package engine

import (
	"context"
	"log/slog"

	"github.com/solatis/editcheck/internal/catalog"
	"github.com/solatis/editcheck/internal/core/logging"
	"github.com/solatis/editcheck/internal/rules"
	"github.com/solatis/editcheck/internal/types"
)

// Default fan-out bounds.
const (
	DefaultRecordConcurrency    = 100
	DefaultAggregateConcurrency = rules.DefaultFanOutLimit
)

// Session is one validation run over one document.
type Session struct {
	runID    types.RunID
	year     int
	doc      *types.Document
	catalog  catalog.Catalog
	engine   *rules.Engine
	errors   *types.ErrorCollection
	progress *Progress

	recordConcurrency    int
	aggregateConcurrency int
	logger               *slog.Logger
	metrics              *Metrics
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records run metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithRecordConcurrency bounds concurrent record evaluations per edit.
func WithRecordConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.recordConcurrency = n
		}
	}
}

// WithAggregateConcurrency bounds concurrent sub-lookups inside one aggregate.
func WithAggregateConcurrency(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.aggregateConcurrency = n
		}
	}
}

// WithProgress replaces the session's progress tracker.
func WithProgress(p *Progress) Option {
	return func(s *Session) {
		if p != nil {
			s.progress = p
		}
	}
}

// NewSession creates a session for doc. Edits for year are read from cat and
// compiled through eng. A nil doc is treated as an empty document.
func NewSession(year int, doc *types.Document, cat catalog.Catalog, eng *rules.Engine, opts ...Option) *Session {
	// A session without a loaded filing still serves RunSingleRecord.
	if doc == nil {
		doc = &types.Document{}
	}
	s := &Session{
		runID:                types.NewRunID(),
		year:                 year,
		doc:                  doc,
		catalog:              cat,
		engine:               eng,
		errors:               types.NewErrorCollection(),
		progress:             NewProgress(),
		recordConcurrency:    DefaultRecordConcurrency,
		aggregateConcurrency: DefaultAggregateConcurrency,
		logger:               logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("run_id", string(s.runID))
	return s
}

// RunID identifies this session in logs and exports.
func (s *Session) RunID() types.RunID { return s.runID }

// Year is the filing period the catalog is queried for.
func (s *Session) Year() int { return s.year }

// Document returns the document under validation.
func (s *Session) Document() *types.Document { return s.doc }

// Errors returns the session's error collection.
func (s *Session) Errors() *types.ErrorCollection { return s.errors }

// Progress returns the session's progress tracker.
func (s *Session) Progress() *Progress { return s.progress }

// Reset clears accumulated errors so the session can be rerun.
func (s *Session) Reset() {
	s.errors.Clear()
}

// fork returns a session sharing configuration but owning doc and a fresh
// collection and tracker.
func (s *Session) fork(doc *types.Document) *Session {
	cp := *s
	cp.doc = doc
	cp.errors = types.NewErrorCollection()
	cp.progress = NewProgress()
	return &cp
}

// edits loads the catalog entries for one pass.
func (s *Session) edits(ctx context.Context, scope types.Scope, editType types.EditType) ([]types.Edit, error) {
	return s.catalog.Edits(ctx, s.year, scope, editType)
}
