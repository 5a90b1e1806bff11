// Package filing reads loan filings into types.Document.
//
// A filing is one JSON object:
//
//	{"header": {...}, "details": [{...}, ...]}
//
// Files ending in .gz or .zst are decompressed first. Line numbers follow
// the flat-file layout the edits report against: the header is line 1 and
// detail i is line i+2, unless a record carries its own "lineNumber".
package filing

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/solatis/editcheck/internal/types"
)

// HeaderLine is the line number assigned to the header record.
const HeaderLine = 1

type rawFiling struct {
	Header  map[string]any   `json:"header"`
	Details []map[string]any `json:"details"`
}

// Load reads the filing at path.
func Load(path string) (*types.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open filing: %w", err)
	}
	defer f.Close()

	r, closeFn, err := decompress(path, bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer closeFn()

	doc, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

func decompress(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, func() { zr.Close() }, nil
	case ".zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return r, func() {}, nil
	}
}

// Decode parses one filing from r.
func Decode(r io.Reader) (*types.Document, error) {
	var raw rawFiling
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode filing: %w", err)
	}
	if raw.Header == nil {
		return nil, fmt.Errorf("filing has no header")
	}

	doc := &types.Document{Details: make(types.Records, 0, len(raw.Details))}
	header, err := newRecord(HeaderLine, raw.Header)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	doc.Header = header

	for i, fields := range raw.Details {
		rec, err := newRecord(i+HeaderLine+1, fields)
		if err != nil {
			return nil, fmt.Errorf("detail %d: %w", i, err)
		}
		doc.Details = append(doc.Details, rec)
	}
	return doc, nil
}

// newRecord converts decoded JSON numbers and honours an explicit lineNumber.
func newRecord(line int, fields map[string]any) (*types.Record, error) {
	for k, v := range fields {
		fields[k] = normalize(v)
	}
	if v, ok := fields[types.FieldLineNumber]; ok {
		n, ok := v.(int64)
		if !ok || n <= 0 {
			return nil, fmt.Errorf("lineNumber must be a positive integer, got %v", v)
		}
		line = int(n)
		delete(fields, types.FieldLineNumber)
	}
	return types.NewRecord(line, fields), nil
}

// normalize turns json.Number into int64 when integral and float64 otherwise,
// recursing into nested values.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	default:
		return v
	}
}
