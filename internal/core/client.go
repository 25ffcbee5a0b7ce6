package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pa1bh/chatserver/internal/ratelimit"
)

// OutboundBuffer is the per-client outbound queue capacity. A client
// that cannot drain this many frames starts losing broadcasts instead
// of stalling the rest of the room.
const OutboundBuffer = 256

// Client is one live connection as seen by the hub. The outbound queue
// is consumed exclusively by that connection's write loop.
type Client struct {
	ID          uuid.UUID
	IP          string
	ConnectedAt time.Time

	mu   sync.RWMutex
	name string

	outbound  chan []byte
	closeOnce sync.Once

	limiter *ratelimit.SlidingWindow
}

// NewClient constructs a registered-ready client. chatLimit configures
// the per-client chat window; zero disables it.
func NewClient(id uuid.UUID, name, ip string, chatLimit int) *Client {
	return &Client{
		ID:          id,
		IP:          ip,
		ConnectedAt: time.Now(),
		name:        name,
		outbound:    make(chan []byte, OutboundBuffer),
		limiter:     ratelimit.NewSlidingWindow(chatLimit),
	}
}

// Name returns the current display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// rename swaps the display name and returns the previous one.
func (c *Client) rename(name string) (old string) {
	c.mu.Lock()
	old = c.name
	c.name = name
	c.mu.Unlock()
	return old
}

// Outbound exposes the queue to the connection's write loop.
func (c *Client) Outbound() <-chan []byte {
	return c.outbound
}

// TrySend enqueues a pre-serialized frame without blocking. It reports
// false when the queue is full or already closed.
func (c *Client) TrySend(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// Send marshals payload and enqueues it without blocking.
func (c *Client) Send(payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return c.TrySend(data)
}

// Close releases the outbound queue, ending the write loop. Safe to
// call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.outbound)
	})
}
