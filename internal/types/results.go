package types

import (
	"sort"
	"sync"

	json "github.com/goccy/go-json"
)

// ErrorEntry is one failing evaluation against a single record.
// LineNumber is zero for document-scope failures not tied to a record.
type ErrorEntry struct {
	LineNumber      int            `json:"lineNumber,omitempty"`
	LoanNumber      string         `json:"loanNumber,omitempty"`
	UniversalLoanID string         `json:"universalLoanId,omitempty"`
	Properties      map[string]any `json:"properties"`
}

// EntryFor starts an error entry carrying the record's identity fields.
func EntryFor(r *Record) ErrorEntry {
	e := ErrorEntry{Properties: make(map[string]any)}
	if r != nil {
		e.LineNumber = r.LineNumber
		e.LoanNumber = r.LoanNumber()
		e.UniversalLoanID = r.UniversalLoanID()
	}
	return e
}

// EditErrors groups every failure of one edit.
type EditErrors struct {
	Description string       `json:"description"`
	Explanation string       `json:"explanation"`
	Scope       Scope        `json:"scope"`
	Errors      []ErrorEntry `json:"errors"`
}

// ErrorCollection is the append-only result of a run, keyed by edit type then
// edit id. Entries are created on first failure. The mutex serializes the
// orchestrator's fan-out goroutines; callers wanting isolated results use
// separate instances.
type ErrorCollection struct {
	mu     sync.Mutex
	byType map[EditType]map[string]*EditErrors
}

// NewErrorCollection returns an empty collection.
func NewErrorCollection() *ErrorCollection {
	return &ErrorCollection{byType: make(map[EditType]map[string]*EditErrors)}
}

// Append folds entries under [edit.Type][edit.ID]. Appending nothing is a no-op
// and does not create the edit's entry.
func (c *ErrorCollection) Append(editType EditType, edit *Edit, entries ...ErrorEntry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byID, ok := c.byType[editType]
	if !ok {
		byID = make(map[string]*EditErrors)
		c.byType[editType] = byID
	}
	ee, ok := byID[edit.ID]
	if !ok {
		ee = &EditErrors{
			Description: edit.Description,
			Explanation: edit.Explanation,
			Scope:       edit.Scope,
		}
		byID[edit.ID] = ee
	}
	ee.Errors = append(ee.Errors, entries...)
}

// Clear drops every entry; used between runs.
func (c *ErrorCollection) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byType = make(map[EditType]map[string]*EditErrors)
}

// Len counts entries across all edits.
func (c *ErrorCollection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byID := range c.byType {
		for _, ee := range byID {
			n += len(ee.Errors)
		}
	}
	return n
}

// Get returns a copy of one edit's errors.
func (c *ErrorCollection) Get(editType EditType, editID string) (EditErrors, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ee, ok := c.byType[editType][editID]
	if !ok {
		return EditErrors{}, false
	}
	return copyEditErrors(ee), true
}

// Snapshot returns a deep-enough copy of the collection with each edit's
// entries sorted by line number. Concurrent fan-out appends in completion
// order; sorting here keeps exports deterministic.
func (c *ErrorCollection) Snapshot() map[EditType]map[string]EditErrors {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[EditType]map[string]EditErrors, len(c.byType))
	for t, byID := range c.byType {
		m := make(map[string]EditErrors, len(byID))
		for id, ee := range byID {
			m[id] = copyEditErrors(ee)
		}
		out[t] = m
	}
	return out
}

// MarshalJSON exports the Snapshot form.
func (c *ErrorCollection) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

func copyEditErrors(ee *EditErrors) EditErrors {
	cp := *ee
	cp.Errors = append([]ErrorEntry(nil), ee.Errors...)
	sort.SliceStable(cp.Errors, func(i, j int) bool {
		return cp.Errors[i].LineNumber < cp.Errors[j].LineNumber
	})
	return cp
}
