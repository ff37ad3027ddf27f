package reaper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
)

type Registry interface {
	ListInactive(timeout time.Duration) []uint64
	RemoveIfInactive(id uint64, timeout time.Duration) bool
}

// Reaper evicts sessions that have not pinged within the timeout. It is the
// only component that removes sessions for inactivity.
type Reaper struct {
	reg      Registry
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func New(reg Registry, interval, timeout time.Duration, logger *zap.Logger, m *metrics.Collector) *Reaper {
	return &Reaper{
		reg:      reg,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		metrics:  m,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Info("Reaper started", zap.Duration("interval", r.interval), zap.Duration("timeout", r.timeout))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one eviction pass and returns the evicted ids.
func (r *Reaper) Sweep() []uint64 {
	var evicted []uint64
	for _, id := range r.reg.ListInactive(r.timeout) {
		// closed or touched since it was listed
		if !r.reg.RemoveIfInactive(id, r.timeout) {
			continue
		}
		r.logger.Info("Evicted inactive session", zap.Uint64("session_id", id))
		r.metrics.SessionClosed(true)
		evicted = append(evicted, id)
	}
	return evicted
}
