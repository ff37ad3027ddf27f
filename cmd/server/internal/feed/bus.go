package feed

import (
	"sync"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
	"github.com/shubham-shewale/quotestream/pkg/models"
)

// Bus is a broadcast: every open subscription receives every published quote.
// Each subscriber owns a bounded inbox; when it is full the quote is dropped
// for that subscriber only, so one slow session never stalls the others.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	metrics *metrics.Collector
}

func NewBus(m *metrics.Collector) *Bus {
	return &Bus{
		subs:    make(map[*Subscription]struct{}),
		metrics: m,
	}
}

type Subscription struct {
	bus  *Bus
	ch   chan models.Quote
	once sync.Once
}

// Subscribe opens an inbox of the given capacity.
func (b *Bus) Subscribe(size int) *Subscription {
	if size < 1 {
		size = 1
	}
	s := &Subscription{bus: b, ch: make(chan models.Quote, size)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// C is closed when the subscription or the bus is closed.
func (s *Subscription) C() <-chan models.Quote { return s.ch }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.once.Do(func() { close(s.ch) })
}

// Publish copies q into every inbox and returns how many accepted it.
func (b *Bus) Publish(q models.Quote) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for s := range b.subs {
		select {
		case s.ch <- q:
			delivered++
		default:
			b.metrics.QuoteDropped("inbox_full")
		}
	}
	b.metrics.QuotePublished()
	return delivered
}

// Len is the number of open subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every inbox; later subscriptions start closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}
