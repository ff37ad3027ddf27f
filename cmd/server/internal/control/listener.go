package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Listener accepts control connections and serves each on its own goroutine.
type Listener struct {
	ln           net.Listener
	handler      *Handler
	pollInterval time.Duration
	logger       *zap.Logger
}

// Listen binds the control socket. Failing here is fatal for the server.
func Listen(addr string, handler *Handler, pollInterval time.Duration, logger *zap.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &Listener{
		ln:           ln,
		handler:      handler,
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Serve accepts until ctx is cancelled, then waits for every connection
// handler (and the sessions they own) to finish.
func (l *Listener) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	defer l.ln.Close()

	l.logger.Info("Control listener started", zap.String("addr", l.ln.Addr().String()))
	defer l.logger.Info("Control listener stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if d, ok := l.ln.(deadliner); ok {
			if err := d.SetDeadline(time.Now().Add(l.pollInterval)); err != nil {
				return fmt.Errorf("set accept deadline: %w", err)
			}
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			l.logger.Warn("Error accepting connection", zap.Error(err))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.handler.Serve(ctx, conn)
		}()
	}
}
