package stream

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/feed"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
)

// Runner starts the dispatcher + monitor pair for accepted sessions.
type Runner struct {
	cfg      Config
	reg      Registry
	bus      *feed.Bus
	bindAddr string
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewRunner(cfg Config, reg Registry, bus *feed.Bus, logger *zap.Logger, m *metrics.Collector) *Runner {
	return &Runner{
		cfg:      cfg,
		reg:      reg,
		bus:      bus,
		bindAddr: ":0",
		logger:   logger,
		metrics:  m,
	}
}

// Handle tracks one session's pair of tasks.
type Handle struct {
	ID   uint64
	conn net.PacketConn
	done chan struct{}
}

// Done is closed once both tasks have stopped and the socket is closed.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Wait() { <-h.done }

// LocalAddr is the server side of the session's data channel.
func (h *Handle) LocalAddr() net.Addr { return h.conn.LocalAddr() }

// Start opens an ephemeral data socket for session id, subscribes it to the
// feed and launches its dispatcher and heartbeat monitor.
func (r *Runner) Start(ctx context.Context, id uint64, endpoint net.Addr) (*Handle, error) {
	conn, err := net.ListenPacket("udp", r.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("bind data socket: %w", err)
	}

	sub := r.bus.Subscribe(r.cfg.InboxSize)
	dispatcher := NewDispatcher(id, conn, endpoint, r.reg, sub, r.cfg, r.logger, r.metrics)
	monitor := NewMonitor(id, conn, r.reg, r.cfg, r.logger, r.metrics)

	h := &Handle{ID: id, conn: conn, done: make(chan struct{})}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := dispatcher.Run(ctx); err != nil {
			r.logger.Warn("Dispatcher exited", zap.Uint64("session_id", id), zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := monitor.Run(ctx); err != nil {
			r.logger.Warn("Monitor exited", zap.Uint64("session_id", id), zap.Error(err))
		}
	}()
	go func() {
		wg.Wait()
		conn.Close()
		close(h.done)
	}()

	return h, nil
}
