// Package app wires together core and transport layers.
package app

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/pa1bh/chatserver/internal/ai"
	"github.com/pa1bh/chatserver/internal/config"
	"github.com/pa1bh/chatserver/internal/core"
	"github.com/pa1bh/chatserver/internal/metrics"
	transporthttp "github.com/pa1bh/chatserver/internal/transport/http"
)

// App holds the running server and its hub.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	aiClient := ai.New(ai.Config{
		Enabled:   cfg.AI.Enabled,
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		RateLimit: cfg.AI.RateLimit,
		Timeout:   cfg.AI.Timeout,
		MaxTokens: cfg.AI.MaxTokens,
	}, logger)

	logger.Info().
		Bool("enabled", cfg.AI.Enabled).
		Str("model", cfg.AI.Model).
		Int("rate_limit", cfg.AI.RateLimit).
		Dur("timeout", cfg.AI.Timeout).
		Int("max_tokens", cfg.AI.MaxTokens).
		Bool("has_api_key", cfg.AI.APIKey != "").
		Msg("ai configuration loaded")

	if cfg.RateLimit.Enabled {
		logger.Info().
			Int("messages_per_minute", cfg.RateLimit.MessagesPerMinute).
			Msg("chat rate limiting enabled")
	}

	hub := core.NewHub(aiClient, m, cfg.RateLimit.ChatLimit(), logger)
	server := transporthttp.NewServer(hub, cfg, reg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		log:             logger,
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}
