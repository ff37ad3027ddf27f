package registry_test

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/registry"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/testutils"
)

func setup() (*registry.Registry, *testutils.MockClock) {
	clock := testutils.NewMockClock(time.Unix(1000, 0))
	return registry.New(clock), clock
}

func TestRegistry_CreateAssignsMonotonicIDs(t *testing.T) {
	r, _ := setup()

	a := r.Create([]string{"AAPL"}, "127.0.0.1:1")
	b := r.Create([]string{"MSFT"}, "127.0.0.1:2")
	r.Remove(a)
	c := r.Create([]string{"TSLA"}, "127.0.0.1:3")

	if !(a < b && b < c) {
		t.Errorf("Expected strictly increasing ids, got %d %d %d", a, b, c)
	}
	if r.Count() != 2 {
		t.Errorf("Expected 2 sessions, got %d", r.Count())
	}
}

func TestRegistry_GetReturnsSubscriptionSet(t *testing.T) {
	r, clock := setup()
	id := r.Create([]string{"MSFT", "AAPL", "MSFT"}, "127.0.0.1:34254")

	s, ok := r.Get(id)
	if !ok {
		t.Fatal("Session not found")
	}
	if !reflect.DeepEqual(s.Tickers, []string{"AAPL", "MSFT"}) {
		t.Errorf("Unexpected tickers %v", s.Tickers)
	}
	if s.DataEndpoint != "127.0.0.1:34254" {
		t.Errorf("Unexpected endpoint %s", s.DataEndpoint)
	}
	if !s.LastSeen.Equal(clock.Now()) {
		t.Error("LastSeen must be initialised on create")
	}
}

func TestRegistry_HasTicker(t *testing.T) {
	r, _ := setup()
	id := r.Create([]string{"AAPL"}, "e")

	if has, ok := r.HasTicker(id, "AAPL"); !has || !ok {
		t.Error("Expected AAPL subscription")
	}
	if has, ok := r.HasTicker(id, "TSLA"); has || !ok {
		t.Error("TSLA should be known-session, not subscribed")
	}
	if _, ok := r.HasTicker(id+100, "AAPL"); ok {
		t.Error("Unknown session must report absent")
	}
}

func TestRegistry_TouchUnknown(t *testing.T) {
	r, _ := setup()
	id := r.Create([]string{"AAPL"}, "e")
	r.Remove(id)

	if r.Touch(id) {
		t.Error("Touch on removed session must report false")
	}
	if r.Remove(id) {
		t.Error("Second remove must report false")
	}
}

func TestRegistry_ListInactive(t *testing.T) {
	r, clock := setup()
	stale := r.Create([]string{"AAPL"}, "a")
	fresh := r.Create([]string{"AAPL"}, "b")

	clock.Advance(6 * time.Second)
	if !r.Touch(fresh) {
		t.Fatal("Touch failed")
	}

	got := r.ListInactive(5 * time.Second)
	if !reflect.DeepEqual(got, []uint64{stale}) {
		t.Errorf("Expected only %d inactive, got %v", stale, got)
	}
}

func TestRegistry_RemoveIfInactive(t *testing.T) {
	r, clock := setup()
	stale := r.Create([]string{"AAPL"}, "a")
	fresh := r.Create([]string{"AAPL"}, "b")

	clock.Advance(6 * time.Second)
	r.Touch(fresh)

	if r.RemoveIfInactive(fresh, 5*time.Second) {
		t.Error("Recently touched session must not be removed")
	}
	if !r.RemoveIfInactive(stale, 5*time.Second) {
		t.Error("Stale session should be removed")
	}
	if r.RemoveIfInactive(stale, 5*time.Second) {
		t.Error("Second removal of the same id should report false")
	}
	if r.Exists(stale) || !r.Exists(fresh) {
		t.Error("Unexpected registry contents after conditional removal")
	}
}

func TestRegistry_TouchMonotonic(t *testing.T) {
	r, clock := setup()
	id := r.Create([]string{"AAPL"}, "e")

	clock.Advance(3 * time.Second)
	r.Touch(id)
	before, _ := r.Get(id)

	// clock going backwards must not rewind last-seen
	clock.Advance(-2 * time.Second)
	r.Touch(id)
	after, _ := r.Get(id)

	if after.LastSeen.Before(before.LastSeen) {
		t.Errorf("LastSeen decreased: %v -> %v", before.LastSeen, after.LastSeen)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	// Run with `go test -race ./...`
	r, _ := setup()

	var wg sync.WaitGroup
	ids := make(chan uint64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := r.Create([]string{"AAPL"}, "e")
			r.Touch(id)
			r.HasTicker(id, "AAPL")
			r.ListInactive(time.Second)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uint64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate id %d", id)
		}
		seen[id] = true
	}
	if r.Count() != 100 {
		t.Errorf("Expected 100 sessions, got %d", r.Count())
	}
}
