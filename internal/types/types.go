// Package types provides domain models shared across editcheck components.
//
// Records and documents are the engine's view of a parsed filing: a header
// record plus many detail records, each a flat map of string-keyed fields with
// an assigned line number. Rule trees, edits, and error collections live here
// so the catalog, lookup, and engine packages agree on one vocabulary without
// importing each other.
package types

import "strconv"

// Lookup is a read-only key-value view used by the argument resolver.
// Implementations return ok=false when the key is not defined.
type Lookup interface {
	Lookup(key string) (any, bool)
}

// Well-known record fields used to populate error entries.
const (
	FieldLineNumber      = "lineNumber"
	FieldLoanNumber      = "loanNumber"
	FieldUniversalLoanID = "universalLoanId"
	FieldRecordID        = "recordID"
)

// Record is a single tokenized filing line.
type Record struct {
	LineNumber int
	Fields     map[string]any
}

// NewRecord builds a record from its line number and field map.
func NewRecord(lineNumber int, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{LineNumber: lineNumber, Fields: fields}
}

// Lookup implements Lookup. The assigned line number is exposed as "lineNumber"
// unless the record carries its own field of that name.
func (r *Record) Lookup(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	if v, ok := r.Fields[key]; ok {
		return v, true
	}
	if key == FieldLineNumber {
		return r.LineNumber, true
	}
	return nil, false
}

// LoanNumber returns the record's loan number when present as a string.
func (r *Record) LoanNumber() string {
	return r.stringField(FieldLoanNumber)
}

// UniversalLoanID returns the record's universal loan identifier when present.
func (r *Record) UniversalLoanID() string {
	return r.stringField(FieldUniversalLoanID)
}

func (r *Record) stringField(key string) string {
	if r == nil {
		return ""
	}
	if s, ok := r.Fields[key].(string); ok {
		return s
	}
	return ""
}

// Records is the ordered detail section of a document.
type Records []*Record

// Lookup implements Lookup: "length" yields the record count and numeric keys
// index into the slice.
func (rs Records) Lookup(key string) (any, bool) {
	if key == "length" {
		return len(rs), true
	}
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(rs) {
		return nil, false
	}
	return rs[i], true
}

// Document is a parsed filing: one header record plus detail records.
type Document struct {
	Header  *Record
	Details Records
}

// Lookup implements Lookup for document-level paths such as
// "header.respondentID" or "details.length".
func (d *Document) Lookup(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	switch key {
	case "header":
		if d.Header == nil {
			return nil, false
		}
		return d.Header, true
	case "details":
		return d.Details, true
	default:
		return nil, false
	}
}

// Resource limits enforced by the rule compiler and resolver.
const (
	// MaxPathDepth bounds dotted property paths.
	MaxPathDepth = 16

	// MaxRuleDepth bounds rule tree nesting to keep compilation recursion shallow.
	MaxRuleDepth = 64
)
