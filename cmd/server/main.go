package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quotestream/cmd/server/internal/server"
	"github.com/shubham-shewale/quotestream/pkg/config"
	"github.com/shubham-shewale/quotestream/pkg/shutdown"
)

func main() {
	flags := pflag.NewFlagSet("server", pflag.ExitOnError)
	flags.Int("port", 8080, "control-plane TCP port")
	flags.String("path", "tickers.txt", "file with one ticker per line")
	flags.String("host", "127.0.0.1", "control-plane bind host")
	flags.String("metrics-addr", "", "address for /metrics, empty to disable")
	flags.String("log-level", "info", "debug, info, warn or error")
	flags.Parse(os.Args[1:])

	// 1. Load Config
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Zap Logger
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 3. Setup Shutdown Hook
	coord := shutdown.New(context.Background(), logger)
	coord.NotifyOnSignal()

	// 4. Bind and run
	srv, err := server.New(cfg, coord, logger)
	if err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	if err := srv.Run(); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
