package stream

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/feed"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
)

// Dispatcher forwards the quotes a session subscribed to its data endpoint.
type Dispatcher struct {
	id      uint64
	conn    net.PacketConn
	dest    net.Addr
	reg     Registry
	sub     *feed.Subscription
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewDispatcher(id uint64, conn net.PacketConn, dest net.Addr, reg Registry, sub *feed.Subscription,
	cfg Config, logger *zap.Logger, m *metrics.Collector) *Dispatcher {
	return &Dispatcher{
		id:      id,
		conn:    conn,
		dest:    dest,
		reg:     reg,
		sub:     sub,
		cfg:     cfg,
		logger:  logger.With(zap.Uint64("session_id", id), zap.String("endpoint", dest.String())),
		metrics: m,
	}
}

// Run exits when ctx is cancelled, the feed closes, the session disappears
// from the registry, or a send fails. Only the last case returns an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.sub.Close()

	d.logger.Info("Dispatcher started")
	defer d.logger.Info("Dispatcher stopped")

	poll := time.NewTicker(d.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-poll.C:
			if !d.reg.Exists(d.id) {
				d.logger.Info("Session gone, stopping dispatcher")
				return nil
			}

		case q, ok := <-d.sub.C():
			if !ok {
				return nil
			}

			has, alive := d.reg.HasTicker(d.id, q.Ticker)
			if !alive {
				d.logger.Info("Session gone, stopping dispatcher")
				return nil
			}
			if !has {
				continue
			}

			if err := d.conn.SetWriteDeadline(time.Now().Add(d.cfg.SendTimeout)); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if _, err := d.conn.WriteTo(q.Bytes(), d.dest); err != nil {
				d.logger.Error("Failed to send quote", zap.String("ticker", q.Ticker), zap.Error(err))
				return fmt.Errorf("send to %s: %w", d.dest, err)
			}
			d.metrics.QuoteSent()
			d.logger.Debug("Sent quote", zap.String("ticker", q.Ticker), zap.Float64("price", q.Price))

			if !d.pause(ctx) {
				return nil
			}
		}
	}
}

// pause throttles per-session output; false means ctx ended meanwhile.
func (d *Dispatcher) pause(ctx context.Context) bool {
	if d.cfg.SendDelay <= 0 {
		return true
	}
	t := time.NewTimer(d.cfg.SendDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
