package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/client/internal/client"
	"github.com/shubham-shewale/quotestream/pkg/config"
	"github.com/shubham-shewale/quotestream/pkg/models"
	"github.com/shubham-shewale/quotestream/pkg/shutdown"
	"github.com/shubham-shewale/quotestream/pkg/tickers"
)

func main() {
	flags := pflag.NewFlagSet("client", pflag.ExitOnError)
	flags.String("server-addr", "127.0.0.1:8080", "server control address")
	flags.Int("udp-port", 34254, "local UDP port for quotes")
	flags.String("tickers-path", "", "file with one ticker per line (required)")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Parse(os.Args[1:])

	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Client.TickersPath == "" {
		logger.Fatal("--tickers-path is required")
	}
	syms, err := tickers.Load(cfg.Client.TickersPath)
	if err != nil {
		logger.Fatal("Failed to read tickers", zap.Error(err))
	}
	if len(syms) == 0 {
		logger.Fatal("Ticker file is empty", zap.String("path", cfg.Client.TickersPath))
	}

	coord := shutdown.New(context.Background(), logger)
	coord.NotifyOnSignal()

	c := client.New(client.Config{
		ServerAddr:        cfg.Client.ServerAddr,
		UDPPort:           cfg.Client.UDPPort,
		Tickers:           syms,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatWindow:   cfg.Heartbeat.Window,
		ReadTimeout:       cfg.Heartbeat.ReadTimeout,
	}, logger, func(q models.Quote) {
		logger.Info("Quote",
			zap.String("ticker", q.Ticker),
			zap.Float64("price", q.Price),
			zap.Float64("volume", q.Volume),
			zap.Uint64("timestamp", q.Timestamp))
	})

	if err := c.Subscribe(coord.Context()); err != nil {
		logger.Fatal("Subscription failed", zap.Error(err))
	}

	coord.Go("client", c.Run)

	err = coord.Wait()
	switch {
	case errors.Is(err, client.ErrLinkDead):
		logger.Error("Server unreachable, exiting")
		logger.Sync()
		os.Exit(1)
	case err != nil:
		logger.Error("Client exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Client stopped")
}
