package core

import (
	"testing"

	"github.com/google/uuid"

	"github.com/pa1bh/chatserver/internal/proto"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	h := newTestHub(0)

	clients := make([]*Client, 0, recipients)
	for i := 0; i < recipients; i++ {
		c := h.NewClient("10.0.0.1")
		h.Registry().Add(c)
		clients = append(clients, c)
	}

	// Drain every queue so the fan-out never hits a full buffer.
	for _, c := range clients {
		go func(cl *Client) {
			for range cl.Outbound() {
			}
		}(c)
	}
	defer func() {
		for _, c := range clients {
			c.Close()
		}
	}()

	payload := proto.NewChat("bench", "payload")

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		h.Broadcast(payload, uuid.Nil)
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
