package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/shubham-shewale/quotestream/pkg/heartbeat"
)

// Clock abstracts time for deterministic testing
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Session is a read-only copy of a registry entry.
type Session struct {
	ID           uint64
	Tickers      []string
	DataEndpoint string
	LastSeen     time.Time
}

type entry struct {
	tickers  map[string]struct{}
	endpoint string
	lastSeen time.Time
}

// Registry is the only owner of session state. Other components hold ids and
// go through these accessors; no lock is held across I/O.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*entry
	nextID   uint64
	clock    Clock
}

func New(clock Clock) *Registry {
	if clock == nil {
		clock = RealClock{}
	}
	return &Registry{
		sessions: make(map[uint64]*entry),
		nextID:   1,
		clock:    clock,
	}
}

// Create stores a fully initialised session and returns its id. Ids are
// assigned monotonically and never reused.
func (r *Registry) Create(tickers []string, endpoint string) uint64 {
	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[t] = struct{}{}
	}
	e := &entry{tickers: set, endpoint: endpoint, lastSeen: r.clock.Now()}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.sessions[id] = e
	return id
}

// Remove deletes a session and reports whether it existed.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// RemoveIfInactive deletes the session only if it is still stale under the
// write lock, so a touch that lands after ListInactive keeps it alive.
func (r *Registry) RemoveIfInactive(id uint64, timeout time.Duration) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || !heartbeat.Stale(e.lastSeen, now, timeout) {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Touch refreshes last-seen. False means the session is already gone.
func (r *Registry) Touch(id uint64) bool {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return false
	}
	if now.After(e.lastSeen) {
		e.lastSeen = now
	}
	return true
}

// ListInactive returns the ids not seen within timeout, in ascending order.
func (r *Registry) ListInactive(timeout time.Duration) []uint64 {
	now := r.clock.Now()

	r.mu.RLock()
	var ids []uint64
	for id, e := range r.sessions {
		if heartbeat.Stale(e.lastSeen, now, timeout) {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HasTicker reports subscription membership; ok is false for an unknown id.
func (r *Registry) HasTicker(id uint64, ticker string) (has bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return false, false
	}
	_, has = e.tickers[ticker]
	return has, true
}

func (r *Registry) Exists(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Get returns a copy of the session.
func (r *Registry) Get(id uint64) (Session, bool) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.RUnlock()
		return Session{}, false
	}
	s := Session{ID: id, DataEndpoint: e.endpoint, LastSeen: e.lastSeen}
	s.Tickers = make([]string, 0, len(e.tickers))
	for t := range e.tickers {
		s.Tickers = append(s.Tickers, t)
	}
	r.mu.RUnlock()

	sort.Strings(s.Tickers)
	return s, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
