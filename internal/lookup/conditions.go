package lookup

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/solatis/editcheck/internal/rules"
	"github.com/solatis/editcheck/internal/types"
)

// Register binds svc into lib for filings of the given year:
//
//	isValidCensusCombination(msa, state, county, tract)
//	isValidRespondent(agencyCode, respondentID)
//	isOutsideMetroArea(state, county)
//	geographyCoverage(minimum)   aggregate over the details
func Register(lib *rules.Library, svc Service, year int) error {
	b := binder{svc: svc, year: year}

	if err := lib.RegisterPredicate("isValidCensusCombination", b.exists(KindGeography, KeyMSA, KeyState, KeyCounty, KeyTract)); err != nil {
		return err
	}
	if err := lib.RegisterPredicate("isValidRespondent", b.exists(KindRespondent, KeyAgencyCode, KeyRespondentID)); err != nil {
		return err
	}
	inMetro := b.exists(KindMetroCounty, KeyState, KeyCounty)
	if err := lib.RegisterPredicate("isOutsideMetroArea", func(ctx context.Context, args []any) (bool, error) {
		ok, err := inMetro(ctx, args)
		return !ok, err
	}); err != nil {
		return err
	}
	return lib.RegisterAggregate("geographyCoverage", b.coverage)
}

type binder struct {
	svc  Service
	year int
}

// exists builds a predicate whose positional arguments fill keys in order.
func (b binder) exists(kind Kind, keys ...string) rules.PredicateFunc {
	return func(ctx context.Context, args []any) (bool, error) {
		if len(args) < len(keys) {
			return false, fmt.Errorf("%w: %s lookup expects %d arguments, got %d",
				types.ErrMalformedRule, kind, len(keys), len(args))
		}
		q := Query{Kind: kind, Year: b.year, Keys: make(map[string]string, len(keys))}
		for i, k := range keys {
			q.Keys[k] = keyText(args[i])
		}
		return b.svc.Exists(ctx, q)
	}
}

// coverage fails when fewer than minimum (0..1) of the details reporting a
// tract carry a valid census combination.
func (b binder) coverage(ctx context.Context, doc *types.Document, args []any) ([]types.ErrorEntry, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%w: geographyCoverage expects 1 argument", types.ErrMalformedRule)
	}
	minimum, err := strconv.ParseFloat(keyText(args[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: geographyCoverage minimum must be numeric", types.ErrMalformedRule)
	}
	if doc == nil {
		return nil, nil
	}

	var checked []*types.Record
	for _, d := range doc.Details {
		if tract, _ := d.Lookup(KeyTract); keyText(tract) != "NA" && keyText(tract) != "" {
			checked = append(checked, d)
		}
	}
	if len(checked) == 0 {
		return nil, nil
	}

	var valid atomic.Int64
	err = rules.ForEach(ctx, checked, func(ctx context.Context, _ int, d *types.Record) error {
		q := Query{Kind: KindGeography, Year: b.year, Keys: make(map[string]string, 4)}
		for _, k := range []string{KeyMSA, KeyState, KeyCounty, KeyTract} {
			v, _ := d.Lookup(k)
			q.Keys[k] = keyText(v)
		}
		ok, err := b.svc.Exists(ctx, q)
		if err != nil {
			return err
		}
		if ok {
			valid.Add(1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	coverage := float64(valid.Load()) / float64(len(checked))
	if coverage >= minimum {
		return nil, nil
	}
	e := types.EntryFor(nil)
	e.Properties["Records with tract"] = len(checked)
	e.Properties["Valid geographies"] = int(valid.Load())
	e.Properties["Coverage"] = coverage
	e.Properties["Minimum coverage"] = minimum
	return []types.ErrorEntry{e}, nil
}

func keyText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
