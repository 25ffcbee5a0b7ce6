package core

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the concurrent mapping from connection identity to live
// client state. Broadcast iterates a snapshot, so inserts and removals
// of unrelated entries never interfere with an in-flight fan-out.
type Registry struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[uuid.UUID]*Client)}
}

// Add inserts the client. It must happen before any traffic for that
// connection is processed.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ID] = c
	r.mu.Unlock()
}

// Remove deletes and returns the client, or nil if it was never
// registered.
func (r *Registry) Remove(id uuid.UUID) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.clients[id]
	delete(r.clients, id)
	return c
}

// Get returns the client for id, or nil.
func (r *Registry) Get(id uuid.UUID) *Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.clients[id]
}

// Len is the number of live clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Snapshot copies the current client set for lock-free iteration.
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Rename updates a client's display name atomically with respect to
// concurrent readers of that entry. It returns the previous name.
func (r *Registry) Rename(id uuid.UUID, name string) (old string, ok bool) {
	r.mu.RLock()
	c := r.clients[id]
	r.mu.RUnlock()
	if c == nil {
		return "", false
	}
	return c.rename(name), true
}
