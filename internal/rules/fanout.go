package rules

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultFanOutLimit bounds concurrent sub-evaluations inside one aggregate.
const DefaultFanOutLimit = 10

type fanOutKey struct{}

// WithFanOutLimit sets the bound ForEach applies to aggregates evaluated
// under ctx.
func WithFanOutLimit(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, fanOutKey{}, n)
}

// FanOutLimit returns the bound set by WithFanOutLimit, or DefaultFanOutLimit.
func FanOutLimit(ctx context.Context) int {
	if n, ok := ctx.Value(fanOutKey{}).(int); ok && n > 0 {
		return n
	}
	return DefaultFanOutLimit
}

// ForEach runs fn for every item with at most FanOutLimit(ctx) in flight.
// The first error cancels the remaining items and is returned; no new work is
// scheduled once ctx is done.
func ForEach[T any](ctx context.Context, items []T, fn func(ctx context.Context, i int, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(FanOutLimit(ctx))
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
