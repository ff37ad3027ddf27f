package reaper_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/reaper"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/registry"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/testutils"
)

func TestReaper_EvictsStaleSession(t *testing.T) {
	clock := testutils.NewMockClock(time.Unix(1000, 0))
	reg := registry.New(clock)

	stale := reg.Create([]string{"AAPL"}, "a")
	live := reg.Create([]string{"AAPL"}, "b")

	clock.Advance(6 * time.Second)
	reg.Touch(live)

	r := reaper.New(reg, 5*time.Second, 5*time.Second, zap.NewNop(), nil)

	if got := reg.ListInactive(5 * time.Second); !reflect.DeepEqual(got, []uint64{stale}) {
		t.Fatalf("Expected %d listed inactive, got %v", stale, got)
	}

	evicted := r.Sweep()
	if !reflect.DeepEqual(evicted, []uint64{stale}) {
		t.Errorf("Expected to evict %d, got %v", stale, evicted)
	}
	if reg.Exists(stale) {
		t.Error("Stale session still registered")
	}
	if !reg.Exists(live) {
		t.Error("Live session was evicted")
	}
}

func TestReaper_SweepIdempotent(t *testing.T) {
	clock := testutils.NewMockClock(time.Unix(1000, 0))
	reg := registry.New(clock)
	reg.Create([]string{"AAPL"}, "a")
	clock.Advance(time.Minute)

	r := reaper.New(reg, time.Second, 5*time.Second, zap.NewNop(), nil)
	if len(r.Sweep()) != 1 {
		t.Fatal("Expected one eviction")
	}
	if len(r.Sweep()) != 0 {
		t.Error("Second sweep should find nothing")
	}
}

// touchAfterList simulates a PING that is handled between the reaper's list
// and remove steps.
type touchAfterList struct {
	*registry.Registry
}

func (r touchAfterList) ListInactive(timeout time.Duration) []uint64 {
	ids := r.Registry.ListInactive(timeout)
	for _, id := range ids {
		r.Touch(id)
	}
	return ids
}

func TestReaper_SparesSessionTouchedAfterListing(t *testing.T) {
	clock := testutils.NewMockClock(time.Unix(1000, 0))
	reg := registry.New(clock)
	id := reg.Create([]string{"AAPL"}, "a")
	clock.Advance(time.Minute)

	r := reaper.New(touchAfterList{reg}, time.Second, 5*time.Second, zap.NewNop(), nil)
	if evicted := r.Sweep(); len(evicted) != 0 {
		t.Errorf("Touched session evicted: %v", evicted)
	}
	if !reg.Exists(id) {
		t.Error("Session refreshed before removal must survive the sweep")
	}
}

func TestReaper_RunTicksAndStops(t *testing.T) {
	reg := registry.New(nil)
	id := reg.Create([]string{"AAPL"}, "a")

	r := reaper.New(reg, 20*time.Millisecond, 50*time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if !testutils.Eventually(time.Second, func() bool { return !reg.Exists(id) }) {
		t.Error("Reaper did not evict within its cycle")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Reaper did not stop on cancellation")
	}
}
