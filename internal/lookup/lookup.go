// Package lookup answers reference-data questions that edits cannot answer
// from the filing alone: does this census geography exist, is this county in
// a metropolitan area, is this institution registered to file.
//
// Service is the collaborator contract. Store answers from local SQL tables,
// Client asks a remote lookup server over gRPC, and RedisCache memoizes any
// Service. Register binds a Service into a rules.Library as named conditions.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind selects the reference table a query targets.
type Kind string

const (
	KindGeography   Kind = "geography"    // msa, state, county, tract
	KindMetroCounty Kind = "metro_county" // state, county
	KindRespondent  Kind = "respondent"   // agency_code, respondent_id
)

// Key names used in Query.Keys.
const (
	KeyMSA          = "msa"
	KeyState        = "state"
	KeyCounty       = "county"
	KeyTract        = "tract"
	KeyAgencyCode   = "agency_code"
	KeyRespondentID = "respondent_id"
)

var requiredKeys = map[Kind][]string{
	KindGeography:   {KeyMSA, KeyState, KeyCounty, KeyTract},
	KindMetroCounty: {KeyState, KeyCounty},
	KindRespondent:  {KeyAgencyCode, KeyRespondentID},
}

// ErrInvalidQuery indicates an unknown kind or missing keys.
var ErrInvalidQuery = errors.New("invalid lookup query")

// Query is one existence check.
type Query struct {
	Kind Kind
	Year int
	Keys map[string]string
}

// Validate checks the kind and its required keys.
func (q Query) Validate() error {
	keys, ok := requiredKeys[q.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidQuery, q.Kind)
	}
	if q.Year <= 0 {
		return fmt.Errorf("%w: year must be positive", ErrInvalidQuery)
	}
	for _, k := range keys {
		if _, ok := q.Keys[k]; !ok {
			return fmt.Errorf("%w: %s query missing %q", ErrInvalidQuery, q.Kind, k)
		}
	}
	return nil
}

// CacheKey renders the query deterministically.
func (q Query) CacheKey() string {
	names := make([]string, 0, len(q.Keys))
	for k := range q.Keys {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(string(q.Kind))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(q.Year))
	for _, k := range names {
		b.WriteByte(':')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(q.Keys[k])
	}
	return b.String()
}

// Service answers existence queries. Implementations return an error wrapping
// types.ErrConnectivity when the backing system cannot be reached.
type Service interface {
	Exists(ctx context.Context, q Query) (bool, error)
}
