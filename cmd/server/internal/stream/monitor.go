package stream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
	"github.com/shubham-shewale/quotestream/pkg/models"
)

const maxDatagram = 1024

// Monitor answers PINGs arriving on the session's data socket and refreshes
// the session's last-seen time. It never removes the session itself.
type Monitor struct {
	id      uint64
	conn    net.PacketConn
	reg     Registry
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewMonitor(id uint64, conn net.PacketConn, reg Registry, cfg Config, logger *zap.Logger, m *metrics.Collector) *Monitor {
	return &Monitor{
		id:      id,
		conn:    conn,
		reg:     reg,
		cfg:     cfg,
		logger:  logger.With(zap.Uint64("session_id", id)),
		metrics: m,
	}
}

// Run exits on cancellation, when the session is no longer registered, or on
// a receive error other than a timeout.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Heartbeat monitor started")
	defer m.logger.Info("Heartbeat monitor stopped")

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !m.reg.Exists(m.id) {
			return nil
		}

		if err := m.conn.SetReadDeadline(time.Now().Add(m.cfg.PollInterval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		n, from, err := m.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			m.logger.Error("Failed to receive ping", zap.Error(err))
			return fmt.Errorf("receive: %w", err)
		}

		if !models.IsPing(buf[:n]) {
			m.logger.Debug("Ignoring datagram", zap.Int("bytes", n), zap.String("remote", from.String()))
			continue
		}

		if !m.reg.Touch(m.id) {
			m.logger.Info("Ping for unknown session, stopping monitor")
			return nil
		}

		if err := m.conn.SetWriteDeadline(time.Now().Add(m.cfg.SendTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
		if _, err := m.conn.WriteTo(models.Pong, from); err != nil {
			m.logger.Warn("Failed to send PONG", zap.String("remote", from.String()), zap.Error(err))
			continue
		}
		m.metrics.PingAnswered()
	}
}
