package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "quotestream"

// Collector groups the server's Prometheus instruments. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsEvicted prometheus.Counter
	rejected        prometheus.Counter
	published       prometheus.Counter
	sent            prometheus.Counter
	dropped         *prometheus.CounterVec
	pings           prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions", Help: "Sessions currently in the registry.",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_created_total", Help: "Accepted STREAM requests.",
		}),
		sessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_evicted_total", Help: "Sessions removed by the inactivity reaper.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "commands_rejected_total", Help: "Malformed control-plane requests.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "quotes_published_total", Help: "Quotes placed on the feed bus.",
		}),
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "quotes_sent_total", Help: "Quote datagrams sent to subscribers.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "quotes_dropped_total", Help: "Quotes dropped before delivery.",
		}, []string{"reason"}),
		pings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pings_answered_total", Help: "PING datagrams answered with PONG.",
		}),
	}

	c.registry.MustRegister(
		c.activeSessions, c.sessionsCreated, c.sessionsEvicted, c.rejected,
		c.published, c.sent, c.dropped, c.pings,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) SessionCreated() {
	if c == nil {
		return
	}
	c.sessionsCreated.Inc()
	c.activeSessions.Inc()
}

// SessionClosed is called once per removed session, evicted or not.
func (c *Collector) SessionClosed(evicted bool) {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
	if evicted {
		c.sessionsEvicted.Inc()
	}
}

func (c *Collector) CommandRejected() {
	if c == nil {
		return
	}
	c.rejected.Inc()
}

func (c *Collector) QuotePublished() {
	if c == nil {
		return
	}
	c.published.Inc()
}

func (c *Collector) QuoteSent() {
	if c == nil {
		return
	}
	c.sent.Inc()
}

// QuoteDropped counts by reason, e.g. "inbox_full".
func (c *Collector) QuoteDropped(reason string) {
	if c == nil {
		return
	}
	c.dropped.WithLabelValues(reason).Inc()
}

func (c *Collector) PingAnswered() {
	if c == nil {
		return
	}
	c.pings.Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, c *Collector, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics endpoint started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
