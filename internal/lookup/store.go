package lookup

import (
	"context"
	"fmt"

	"github.com/solatis/editcheck/internal/core/db"
	"github.com/solatis/editcheck/internal/types"
)

// Store answers queries from the geographies and respondents tables.
type Store struct {
	queries *db.Queries
}

// NewStore creates a Store over q.
func NewStore(q *db.Queries) *Store {
	return &Store{queries: q}
}

// Geography is one row of census reference data.
type Geography struct {
	MSA    string `json:"msa"`
	State  string `json:"state"`
	County string `json:"county"`
	Tract  string `json:"tract"`
}

// Respondent is one registered institution.
type Respondent struct {
	AgencyCode   string `json:"agency_code"`
	RespondentID string `json:"respondent_id"`
	Name         string `json:"name"`
}

// Exists implements Service. Database failures wrap types.ErrConnectivity.
func (s *Store) Exists(ctx context.Context, q Query) (bool, error) {
	if err := q.Validate(); err != nil {
		return false, err
	}

	var (
		name string
		args []any
	)
	switch q.Kind {
	case KindGeography:
		name = "geography-exists"
		args = []any{q.Year, q.Keys[KeyMSA], q.Keys[KeyState], q.Keys[KeyCounty], q.Keys[KeyTract]}
	case KindMetroCounty:
		name = "county-in-metro"
		args = []any{q.Year, q.Keys[KeyState], q.Keys[KeyCounty]}
	case KindRespondent:
		name = "respondent-exists"
		args = []any{q.Year, q.Keys[KeyAgencyCode], q.Keys[KeyRespondentID]}
	}

	var n int
	if err := s.queries.Get(ctx, name, &n, args...); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %s lookup: %v", types.ErrConnectivity, q.Kind, err)
	}
	return n > 0, nil
}

// AddGeographies loads census reference rows for year.
func (s *Store) AddGeographies(ctx context.Context, year int, rows ...Geography) error {
	return s.queries.WithTx(ctx, func(tx *db.Queries) error {
		for _, g := range rows {
			if _, err := tx.Exec(ctx, "insert-geography", year, g.MSA, g.State, g.County, g.Tract); err != nil {
				return fmt.Errorf("failed to insert geography %s/%s/%s: %w", g.State, g.County, g.Tract, err)
			}
		}
		return nil
	})
}

// AddRespondents loads registered institutions for year.
func (s *Store) AddRespondents(ctx context.Context, year int, rows ...Respondent) error {
	return s.queries.WithTx(ctx, func(tx *db.Queries) error {
		for _, r := range rows {
			if _, err := tx.Exec(ctx, "insert-respondent", year, r.AgencyCode, r.RespondentID, r.Name); err != nil {
				return fmt.Errorf("failed to insert respondent %s/%s: %w", r.AgencyCode, r.RespondentID, err)
			}
		}
		return nil
	})
}
