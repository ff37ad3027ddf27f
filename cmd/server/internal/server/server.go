// Package server assembles the quote server: registry, feed, control
// listener, reaper and mirrors, all joined through one shutdown coordinator.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/control"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/feed"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/generator"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/metrics"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/reaper"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/registry"
	"github.com/shubham-shewale/quotestream/cmd/server/internal/stream"
	"github.com/shubham-shewale/quotestream/pkg/config"
	"github.com/shubham-shewale/quotestream/pkg/shutdown"
	"github.com/shubham-shewale/quotestream/pkg/tickers"
)

const dialTimeout = 3 * time.Second

type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	coord   *shutdown.Coordinator
	metrics *metrics.Collector

	reg      *registry.Registry
	listener *control.Listener
	pump     *feed.Pump
	reaper   *reaper.Reaper
}

// Option overrides a collaborator, mostly for tests.
type Option func(*options)

type options struct {
	source feed.Source
	sinks  []feed.Sink
}

// WithSource replaces the random-walk generator.
func WithSource(src feed.Source) Option {
	return func(o *options) { o.source = src }
}

// WithSinks adds mirrors on top of the configured ones.
func WithSinks(sinks ...feed.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// New binds the control socket and builds every component. A bind failure is
// returned; mirror failures are logged and the mirror is skipped.
func New(cfg *config.Config, coord *shutdown.Coordinator, logger *zap.Logger, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := metrics.NewCollector()
	reg := registry.New(registry.RealClock{})
	bus := feed.NewBus(m)

	runner := stream.NewRunner(stream.Config{
		SendDelay:    cfg.Server.SendDelay,
		SendTimeout:  cfg.Server.SendTimeout,
		PollInterval: cfg.Server.PollInterval,
		InboxSize:    cfg.Server.InboxSize,
	}, reg, bus, logger, m)

	handler := control.NewHandler(reg, runner, cfg.Server.PollInterval, cfg.Server.SendTimeout, logger, m)
	ln, err := control.Listen(cfg.Server.ListenAddr(), handler, cfg.Server.PollInterval, logger)
	if err != nil {
		return nil, err
	}

	source := o.source
	if source == nil {
		syms := tickers.LoadOrDefault(cfg.Server.TickersPath, logger)
		source = generator.NewQuoteGenerator(logger, syms, generator.NewRealRand(), generator.RealClock{})
	}

	sinks := append(mirrors(coord.Context(), cfg, logger), o.sinks...)

	return &Server{
		cfg:      cfg,
		logger:   logger,
		coord:    coord,
		metrics:  m,
		reg:      reg,
		listener: ln,
		pump:     feed.NewPump(logger, source, bus, cfg.Server.QuoteInterval, sinks...),
		reaper:   reaper.New(reg, cfg.Server.ReaperInterval, cfg.Server.InactivityTimeout, logger, m),
	}, nil
}

// mirrors builds the optional Kafka and Redis sinks.
func mirrors(ctx context.Context, cfg *config.Config, logger *zap.Logger) []feed.Sink {
	var sinks []feed.Sink

	if cfg.Kafka.Enabled {
		creator := generator.NewTopicCreator(logger, &generator.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: dialTimeout}})
		if creator.Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic) {
			sinks = append(sinks, feed.NewKafkaSink(feed.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)))
			logger.Info("Kafka mirror enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
		} else {
			logger.Warn("Kafka mirror disabled, topic unavailable", zap.String("topic", cfg.Kafka.Topic))
		}
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("Redis mirror disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			rdb.Close()
		} else {
			sinks = append(sinks, feed.NewRedisSink(rdb, cfg.Redis.ChannelPrefix))
			logger.Info("Redis mirror enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}

	return sinks
}

// Addr is the bound control-plane address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

func (s *Server) Registry() *registry.Registry { return s.reg }

func (s *Server) Metrics() *metrics.Collector { return s.metrics }

// Run starts every task and blocks until all of them have stopped.
func (s *Server) Run() error {
	s.logger.Info("Server started", zap.String("addr", s.Addr().String()))

	s.coord.Go("listener", s.listener.Serve)
	s.coord.Go("pump", s.pump.Run)
	s.coord.Go("reaper", s.reaper.Run)
	if s.cfg.Metrics.Addr != "" {
		s.coord.Go("metrics", func(ctx context.Context) error {
			return metrics.Serve(ctx, s.cfg.Metrics.Addr, s.metrics, s.logger)
		})
	}

	if err := s.coord.Wait(); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	s.logger.Info("Shutdown complete")
	return nil
}
