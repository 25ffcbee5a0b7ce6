// Package http exposes the hub over HTTP: the WebSocket endpoint, a
// health probe and the prometheus scrape endpoint.
package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pa1bh/chatserver/internal/config"
	"github.com/pa1bh/chatserver/internal/core"
)

// NewServer builds the HTTP server with all routes mounted.
func NewServer(hub *core.Hub, cfg config.Config, reg *prometheus.Registry, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/healthz", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// The upgrade must bypass gin: its response writer refuses to hijack
	// once the 101 status has been written, so /ws is mounted on a plain
	// mux beside the router.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg.TrustProxyHeaders, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
