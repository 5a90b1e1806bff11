package catalog

import (
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/solatis/editcheck/internal/core/db"
	"github.com/solatis/editcheck/internal/types"
)

// Store is a catalog backed by the edits table. Decoded passes are cached so
// repeated runs reuse rule trees (and their compiled predicates); Import
// invalidates the cache.
type Store struct {
	queries *db.Queries

	mu    sync.Mutex
	cache map[passKey][]types.Edit
}

type passKey struct {
	year     int
	scope    types.Scope
	editType types.EditType
}

type editRow struct {
	EditID      string `db:"edit_id"`
	Scope       string `db:"scope"`
	EditType    string `db:"edit_type"`
	Description string `db:"description"`
	Explanation string `db:"explanation"`
	Rule        string `db:"rule"`
}

// NewStore creates a catalog over q.
func NewStore(q *db.Queries) *Store {
	return &Store{queries: q, cache: make(map[passKey][]types.Edit)}
}

// Edits implements Catalog.
func (s *Store) Edits(ctx context.Context, year int, scope types.Scope, editType types.EditType) ([]types.Edit, error) {
	key := passKey{year: year, scope: scope, editType: editType}

	s.mu.Lock()
	cached, ok := s.cache[key]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	var rows []editRow
	if err := s.queries.Select(ctx, "list-edits", &rows, year, string(scope), string(editType)); err != nil {
		return nil, fmt.Errorf("failed to list edits: %w", err)
	}

	edits := make([]types.Edit, 0, len(rows))
	for _, r := range rows {
		e := types.Edit{
			ID:          r.EditID,
			Scope:       types.Scope(r.Scope),
			Type:        types.EditType(r.EditType),
			Description: r.Description,
			Explanation: r.Explanation,
			Rule:        new(types.Node),
		}
		if err := json.Unmarshal([]byte(r.Rule), e.Rule); err != nil {
			return nil, &types.RuleSpecError{EditID: r.EditID, Err: err}
		}
		edits = append(edits, e)
	}

	s.mu.Lock()
	s.cache[key] = edits
	s.mu.Unlock()
	return edits, nil
}

// Import replaces the catalog for f.Year with f's edits, keeping file order.
func (s *Store) Import(ctx context.Context, f File) error {
	if err := Validate(f); err != nil {
		return err
	}

	err := s.queries.WithTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "delete-edits-for-year", f.Year); err != nil {
			return fmt.Errorf("failed to clear edits: %w", err)
		}
		for i, e := range f.Edits {
			rule, err := json.Marshal(e.Rule)
			if err != nil {
				return fmt.Errorf("edit %s: failed to encode rule: %w", e.ID, err)
			}
			_, err = tx.Exec(ctx, "insert-edit",
				f.Year, e.ID, string(e.Scope), string(e.Type), i, e.Description, e.Explanation, string(rule))
			if err != nil {
				return fmt.Errorf("edit %s: failed to insert: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cache = make(map[passKey][]types.Edit)
	s.mu.Unlock()
	return nil
}

// Count returns the number of stored edits for year.
func (s *Store) Count(ctx context.Context, year int) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-edits", &n, year); err != nil {
		return 0, fmt.Errorf("failed to count edits: %w", err)
	}
	return n, nil
}
