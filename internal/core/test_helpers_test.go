package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pa1bh/chatserver/internal/ai"
	"github.com/pa1bh/chatserver/internal/log"
	"github.com/pa1bh/chatserver/internal/metrics"
)

// newTestHub builds a hub with a disabled AI gateway and a private
// metrics registry. chatLimit zero disables chat rate limiting.
func newTestHub(chatLimit int) *Hub {
	m := metrics.New(prometheus.NewRegistry())
	aiClient := ai.New(ai.Config{}, log.Nop())
	return NewHub(aiClient, m, chatLimit, log.Nop())
}

// connect registers a fresh client and discards its ackName frame so
// tests start from an empty queue.
func connect(t *testing.T, h *Hub, ip string) *Client {
	t.Helper()
	c := h.NewClient(ip)
	h.Register(c)
	mustFrame(t, c, "ackName")
	return c
}

// mustFrame pops frames from the client's outbound queue until one of
// the wanted type arrives.
func mustFrame(t *testing.T, c *Client, msgType string) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.Outbound():
			if !ok {
				t.Fatalf("outbound closed while waiting for %q", msgType)
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("bad frame %q: %v", data, err)
			}
			if m["type"] == msgType {
				return m
			}
		case <-deadline:
			t.Fatalf("no %q frame received", msgType)
		}
	}
}

// drainFrames empties the client's queue and returns the decoded
// frames currently buffered.
func drainFrames(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case data, ok := <-c.Outbound():
			if !ok {
				return out
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("bad frame %q: %v", data, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

// assertNoFrameOfType fails if a buffered frame has the given type.
func assertNoFrameOfType(t *testing.T, c *Client, msgType string) {
	t.Helper()
	for _, m := range drainFrames(t, c) {
		if m["type"] == msgType {
			t.Fatalf("unexpected %q frame: %+v", msgType, m)
		}
	}
}
