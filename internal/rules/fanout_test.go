package rules

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/solatis/editcheck/internal/types"
)

func TestForEach_RespectsLimit(t *testing.T) {
	ctx := WithFanOutLimit(context.Background(), 2)
	items := make([]int, 12)

	var inFlight, peak atomic.Int32
	err := ForEach(ctx, items, func(context.Context, int, int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", got)
	}
}

func TestForEach_VisitsEveryItem(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	seen := make([]bool, len(items))

	err := ForEach(context.Background(), items, func(_ context.Context, i int, item string) error {
		if items[i] != item {
			t.Errorf("item %d = %q, want %q", i, item, items[i])
		}
		seen[i] = true
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach() error = %v", err)
	}
	for i, ok := range seen {
		if !ok {
			t.Errorf("item %d not visited", i)
		}
	}
}

func TestForEach_FirstErrorWins(t *testing.T) {
	ctx := WithFanOutLimit(context.Background(), 1)
	err := ForEach(ctx, []int{1, 2, 3}, func(_ context.Context, _ int, item int) error {
		if item == 2 {
			return types.ErrConnectivity
		}
		return nil
	})
	if !errors.Is(err, types.ErrConnectivity) {
		t.Errorf("ForEach() error = %v, want ErrConnectivity", err)
	}
}

func TestForEach_CanceledSchedulesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	err := ForEach(ctx, []int{1, 2, 3}, func(context.Context, int, int) error {
		calls.Add(1)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ForEach() error = %v, want context.Canceled", err)
	}
	if calls.Load() != 0 {
		t.Errorf("calls = %d, want 0", calls.Load())
	}
}

func TestFanOutLimit_Default(t *testing.T) {
	if got := FanOutLimit(context.Background()); got != DefaultFanOutLimit {
		t.Errorf("FanOutLimit() = %d, want %d", got, DefaultFanOutLimit)
	}
	if got := FanOutLimit(WithFanOutLimit(context.Background(), 0)); got != DefaultFanOutLimit {
		t.Errorf("FanOutLimit(0) = %d, want default", got)
	}
}
