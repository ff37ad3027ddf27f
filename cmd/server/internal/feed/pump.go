package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/pkg/models"
)

// MirrorQueueSize bounds how many quotes a sink may lag behind the bus.
const MirrorQueueSize = 1024

// Source produces one batch of quotes per call.
type Source interface {
	Next() []models.Quote
}

// mirror feeds one sink from its own queue so a slow sink only delays itself.
type mirror struct {
	sink  Sink
	queue chan models.Quote
}

// Pump moves generator output onto the bus and into every mirror on a fixed cadence.
type Pump struct {
	logger   *zap.Logger
	source   Source
	bus      *Bus
	mirrors  []*mirror
	interval time.Duration
}

func NewPump(logger *zap.Logger, source Source, bus *Bus, interval time.Duration, sinks ...Sink) *Pump {
	mirrors := make([]*mirror, 0, len(sinks))
	for _, s := range sinks {
		mirrors = append(mirrors, &mirror{sink: s, queue: make(chan models.Quote, MirrorQueueSize)})
	}
	return &Pump{
		logger:   logger,
		source:   source,
		bus:      bus,
		mirrors:  mirrors,
		interval: interval,
	}
}

// Run publishes a batch immediately and then every interval until ctx is
// cancelled. On exit it closes the bus, stops the mirror workers and closes
// the sinks.
func (p *Pump) Run(ctx context.Context) error {
	p.logger.Info("Quote pump started", zap.Duration("interval", p.interval), zap.Int("sinks", len(p.mirrors)))

	mirrorCtx, stopMirrors := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, m := range p.mirrors {
		wg.Add(1)
		go func(m *mirror) {
			defer wg.Done()
			p.drain(mirrorCtx, m)
		}(m)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer func() {
		p.bus.Close()
		stopMirrors()
		wg.Wait()
		p.closeSinks()
	}()

	for {
		p.publishBatch()

		select {
		case <-ctx.Done():
			p.logger.Info("Quote pump stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// publishBatch puts the whole batch on the bus before any mirror sees it.
// Mirror hand-off never blocks; a full queue drops the quote for that sink.
func (p *Pump) publishBatch() {
	batch := p.source.Next()

	for _, q := range batch {
		n := p.bus.Publish(q)
		p.logger.Debug("Published", zap.String("ticker", q.Ticker), zap.Float64("price", q.Price), zap.Int("subscribers", n))
	}

	for _, m := range p.mirrors {
		for _, q := range batch {
			select {
			case m.queue <- q:
			default:
				p.bus.metrics.QuoteDropped("mirror_full")
				p.logger.Debug("Mirror queue full, dropping quote", zap.String("ticker", q.Ticker))
			}
		}
	}
}

func (p *Pump) drain(ctx context.Context, m *mirror) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-m.queue:
			if err := m.sink.Publish(ctx, q); err != nil && ctx.Err() == nil {
				p.logger.Error("Mirror publish failed", zap.String("ticker", q.Ticker), zap.Error(err))
			}
		}
	}
}

func (p *Pump) closeSinks() {
	for _, m := range p.mirrors {
		if err := m.sink.Close(); err != nil {
			p.logger.Error("Error closing mirror", zap.Error(err))
		}
	}
}
