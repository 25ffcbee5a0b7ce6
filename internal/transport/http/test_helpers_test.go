package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pa1bh/chatserver/internal/ai"
	"github.com/pa1bh/chatserver/internal/config"
	"github.com/pa1bh/chatserver/internal/core"
	"github.com/pa1bh/chatserver/internal/log"
	"github.com/pa1bh/chatserver/internal/metrics"
)

// newTestServer spins up the full HTTP surface around a fresh hub and
// returns the base URL of the test listener.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	logger := log.Nop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	aiClient := ai.New(ai.Config{}, logger)
	hub := core.NewHub(aiClient, m, cfg.RateLimit.ChatLimit(), logger)

	// NewServer wires the same router the binary uses; only the
	// listener differs.
	srv := NewServer(hub, cfg, reg, logger)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// dial opens a client connection and registers cleanup.
func dial(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, wsURL(ts), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.CloseNow()
	})
	return conn
}

// sendJSON writes one text frame.
func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// expectFrame reads frames until one with the wanted type arrives.
func expectFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) map[string]any {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			t.Fatalf("read failed while waiting for %q: %v", msgType, err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("bad frame %q: %v", data, err)
		}
		if m["type"] == msgType {
			return m
		}
	}
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := stdhttp.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return resp.StatusCode, string(body)
}
