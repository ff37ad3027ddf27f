package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/stream"
	"github.com/shubham-shewale/quotestream/pkg/models"
)

const maxLineLength = 4096

type Registry interface {
	Create(tickers []string, endpoint string) uint64
	Remove(id uint64) bool
}

// SessionStarter launches the per-session dispatcher and monitor.
type SessionStarter interface {
	Start(ctx context.Context, id uint64, endpoint net.Addr) (*stream.Handle, error)
}

// Handler runs the command loop of one control connection.
type Handler struct {
	reg          Registry
	starter      SessionStarter
	pollInterval time.Duration
	writeTimeout time.Duration
	logger       *zap.Logger
	metrics      *metrics.Collector
}

func NewHandler(reg Registry, starter SessionStarter, pollInterval, writeTimeout time.Duration,
	logger *zap.Logger, m *metrics.Collector) *Handler {
	return &Handler{
		reg:          reg,
		starter:      starter,
		pollInterval: pollInterval,
		writeTimeout: writeTimeout,
		logger:       logger,
		metrics:      m,
	}
}

// connState is what one connection owns: the sessions it created.
type connState struct {
	ids     []uint64
	handles []*stream.Handle
}

// Serve reads request lines until EOF, error or cancellation. Sessions created
// on this connection are removed when it closes, and Serve returns only after
// their tasks have stopped.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := h.logger.With(zap.String("conn_id", uuid.NewString()), zap.String("remote", remote))
	logger.Info("Client connected")

	state := &connState{}
	defer func() {
		conn.Close()
		for _, id := range state.ids {
			if h.reg.Remove(id) {
				h.metrics.SessionClosed(false)
			}
		}
		for _, hd := range state.handles {
			hd.Wait()
		}
		logger.Info("Connection handler finished", zap.Int("sessions", len(state.ids)))
	}()

	reader := bufio.NewReader(conn)
	var pending strings.Builder

	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(h.pollInterval)); err != nil {
			logger.Error("Failed to set read deadline", zap.Error(err))
			return
		}

		chunk, err := reader.ReadString('\n')
		pending.WriteString(chunk)
		if pending.Len() > maxLineLength {
			logger.Warn("Line too long", zap.Int("size", pending.Len()))
			return
		}
		if err != nil {
			switch {
			case isTimeout(err):
				continue
			case errors.Is(err, io.EOF):
				// last request may arrive without a trailing newline
				if line := strings.TrimSpace(pending.String()); line != "" {
					h.respond(ctx, conn, line, logger, state)
				}
				logger.Info("Client disconnected")
			case ctx.Err() == nil:
				logger.Error("Failed to read from connection", zap.Error(err))
			}
			return
		}

		line := strings.TrimSpace(pending.String())
		pending.Reset()
		if line == "" {
			continue
		}

		if !h.respond(ctx, conn, line, logger, state) {
			return
		}
	}
}

// respond runs one request and writes its response line. False means the
// connection can no longer be written to.
func (h *Handler) respond(ctx context.Context, conn net.Conn, line string, logger *zap.Logger, state *connState) bool {
	response := h.handleCommand(ctx, line, logger, state)

	if err := conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		logger.Error("Failed to set write deadline", zap.Error(err))
		return false
	}
	if _, err := io.WriteString(conn, response+"\n"); err != nil {
		logger.Error("Error sending response", zap.Error(err))
		return false
	}
	return true
}

// handleCommand executes one request line and returns the response line.
func (h *Handler) handleCommand(ctx context.Context, line string, logger *zap.Logger, state *connState) string {
	logger.Info("Request", zap.String("line", line))

	req, err := ParseRequest(line)
	if err != nil {
		h.metrics.CommandRejected()
		logger.Warn("Rejected command", zap.String("line", line), zap.Error(err))
		return ErrorResponse(err, line)
	}

	id := h.reg.Create(req.Tickers, req.Endpoint.String())
	handle, err := h.starter.Start(ctx, id, req.Endpoint)
	if err != nil {
		h.reg.Remove(id)
		logger.Error("Failed to start session", zap.Uint64("session_id", id), zap.Error(err))
		return ErrorResponse(err, line)
	}

	state.ids = append(state.ids, id)
	state.handles = append(state.handles, handle)
	h.metrics.SessionCreated()

	logger.Info("Session started",
		zap.Uint64("session_id", id),
		zap.String("endpoint", req.Endpoint.String()),
		zap.Strings("tickers", req.Tickers))
	return models.ServerOK
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
