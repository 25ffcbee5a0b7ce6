package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/pa1bh/chatserver/internal/app"
	"github.com/pa1bh/chatserver/internal/config"
	"github.com/pa1bh/chatserver/internal/log"
)

func main() {
	// Local development convenience; missing .env is not an error.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to config file")
		logLevel   = flag.String("log-level", "", "log level (debug, info, warn, error)")
		addr       = flag.String("addr", "", "HTTP listen address")
	)
	flag.Parse()

	bootLogger := log.New("info")
	cfg, path, err := config.Load(bootLogger, *configPath)
	if err != nil {
		bootLogger.Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)

	logger.Info().Str("addr", cfg.Addr).Msg("starting chat server")
	if err := application.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("server stopped")
}
