// Package catalog supplies the ordered edit lists a validation run executes.
//
// Two sources exist: the static catalog embedded in the binary (one JSON file
// per filing year) and a SQL-backed store that operators can import newer
// catalogs into. Both return edits in catalog order, which is the order the
// engine runs them in.
package catalog

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/solatis/editcheck/internal/types"
)

// Catalog returns the edits for one (year, scope, edit type) pass. An unknown
// year or an empty pass yields an empty list and no error.
type Catalog interface {
	Edits(ctx context.Context, year int, scope types.Scope, editType types.EditType) ([]types.Edit, error)
}

// File is the on-disk catalog format.
type File struct {
	Year  int          `json:"year"`
	Edits []types.Edit `json:"edits"`
}

//go:embed builtin/*.json
var builtinFS embed.FS

// Static is an in-memory catalog. Edits share their rule trees across calls,
// so compiled predicates stay cached for the life of the catalog.
type Static struct {
	byYear map[int][]types.Edit
}

// NewStatic builds a catalog from decoded files. Later files for the same
// year replace earlier ones.
func NewStatic(files ...File) (*Static, error) {
	s := &Static{byYear: make(map[int][]types.Edit)}
	for _, f := range files {
		if err := Validate(f); err != nil {
			return nil, err
		}
		s.byYear[f.Year] = f.Edits
	}
	return s, nil
}

// Builtin returns the catalog embedded in the binary.
func Builtin() (*Static, error) {
	entries, err := fs.Glob(builtinFS, "builtin/*.json")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	files := make([]File, 0, len(entries))
	for _, name := range entries {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		var f File
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		files = append(files, f)
	}
	return NewStatic(files...)
}

// Decode reads and validates one catalog file.
func Decode(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return File{}, fmt.Errorf("failed to decode catalog: %w", err)
	}
	if err := Validate(f); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks a catalog file for structural problems: missing ids or
// rules, unknown scopes or types, and duplicate ids.
func Validate(f File) error {
	if f.Year <= 0 {
		return fmt.Errorf("catalog year must be positive, got %d", f.Year)
	}
	seen := make(map[string]bool, len(f.Edits))
	for i, e := range f.Edits {
		if e.ID == "" {
			return fmt.Errorf("edit %d: missing id", i)
		}
		if seen[e.ID] {
			return fmt.Errorf("edit %s: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if _, err := types.ParseScope(string(e.Scope)); err != nil {
			return fmt.Errorf("edit %s: %w", e.ID, err)
		}
		if _, err := types.ParseEditType(string(e.Type)); err != nil {
			return fmt.Errorf("edit %s: %w", e.ID, err)
		}
		if e.Rule == nil {
			return fmt.Errorf("edit %s: missing rule", e.ID)
		}
	}
	return nil
}

// Edits implements Catalog.
func (s *Static) Edits(_ context.Context, year int, scope types.Scope, editType types.EditType) ([]types.Edit, error) {
	return filter(s.byYear[year], scope, editType), nil
}

// All returns every edit for year in catalog order.
func (s *Static) All(year int) []types.Edit {
	return append([]types.Edit(nil), s.byYear[year]...)
}

// Years lists the years the catalog covers.
func (s *Static) Years() []int {
	years := make([]int, 0, len(s.byYear))
	for y := range s.byYear {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

func filter(edits []types.Edit, scope types.Scope, editType types.EditType) []types.Edit {
	var out []types.Edit
	for _, e := range edits {
		if e.Scope == scope && e.Type == editType {
			out = append(out, e)
		}
	}
	return out
}
