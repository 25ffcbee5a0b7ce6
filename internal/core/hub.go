// Package core implements the chat hub: the client registry, the
// protocol dispatcher, broadcast fan-out and the process-wide stats.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pa1bh/chatserver/internal/ai"
	"github.com/pa1bh/chatserver/internal/metrics"
	"github.com/pa1bh/chatserver/internal/proto"
)

// Version is reported in status replies.
const Version = "1.0.0"

const maxChatRunes = 500

// Hub owns all shared state. One instance is constructed at startup and
// handed to every connection; all of its methods are safe for
// concurrent use.
type Hub struct {
	registry  *Registry
	stats     *Stats
	ai        *ai.Client
	metrics   *metrics.Metrics
	chatLimit int
	log       *zerolog.Logger
}

// NewHub builds the hub. chatLimit is the per-client chat messages per
// minute; zero disables chat rate limiting.
func NewHub(aiClient *ai.Client, m *metrics.Metrics, chatLimit int, logger *zerolog.Logger) *Hub {
	return &Hub{
		registry:  NewRegistry(),
		stats:     NewStats(),
		ai:        aiClient,
		metrics:   m,
		chatLimit: chatLimit,
		log:       logger,
	}
}

// Registry exposes the client registry to the transport layer.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Stats exposes the stats tracker.
func (h *Hub) Stats() *Stats {
	return h.stats
}

// NewClient allocates an identity and default guest name for a fresh
// connection.
func (h *Hub) NewClient(ip string) *Client {
	id := uuid.New()
	name := "guest-" + id.String()[:6]
	return NewClient(id, name, ip, h.chatLimit)
}

// Register inserts the client, updates connection stats, acknowledges
// the assigned name to the newcomer and announces the join to everyone
// else. It must run before any traffic for the connection is handled.
func (h *Hub) Register(c *Client) {
	h.registry.Add(c)
	h.stats.ConnectionOpened(h.registry.Len())
	h.metrics.ConnectionsTotal.Inc()
	h.metrics.ConnectedClients.Inc()

	c.Send(proto.NewAckName(c.Name()))
	h.Broadcast(proto.NewSystem(fmt.Sprintf("%s heeft de chat betreden.", c.Name())), c.ID)

	h.log.Info().
		Str("client_id", c.ID.String()).
		Str("name", c.Name()).
		Str("ip", c.IP).
		Msg("client connected")
}

// Unregister removes the client and announces the departure under its
// then-current name. Safe to call for an id that was already removed.
func (h *Hub) Unregister(id uuid.UUID) {
	c := h.registry.Remove(id)
	if c == nil {
		return
	}
	h.metrics.ConnectedClients.Dec()

	h.Broadcast(proto.NewSystem(fmt.Sprintf("%s heeft de chat verlaten.", c.Name())), id)
	c.Close()

	h.log.Info().
		Str("client_id", id.String()).
		Str("name", c.Name()).
		Str("ip", c.IP).
		Msg("client disconnected")
}

// Broadcast serializes payload once and enqueues it on every registered
// client except the given id (uuid.Nil excludes no one). Enqueueing
// never blocks; a full or closed queue drops the frame for that one
// recipient only.
func (h *Hub) Broadcast(payload any, except uuid.UUID) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("broadcast serialize failed")
		return
	}

	for _, c := range h.registry.Snapshot() {
		if except != uuid.Nil && c.ID == except {
			continue
		}
		if !c.TrySend(data) {
			h.metrics.DroppedDeliveries.Inc()
			h.log.Warn().
				Str("client_id", c.ID.String()).
				Msg("dropping frame for slow or disconnected client")
		}
	}
}

// Dispatch interprets one inbound text frame for c. A non-nil return is
// a rejection the caller unicasts back; the connection stays open
// either way.
func (h *Hub) Dispatch(ctx context.Context, c *Client, frame []byte) *Error {
	in, err := proto.DecodeIncoming(frame)
	if err != nil {
		return protocolError("Bericht moet geldig JSON zijn.")
	}

	switch in.Type {
	case proto.InChat:
		return h.handleChat(c, in.Text)
	case proto.InSetName:
		return h.handleSetName(c, in.Name)
	case proto.InStatus:
		h.handleStatus(c)
	case proto.InListUsers:
		h.handleListUsers(c)
	case proto.InPing:
		c.Send(proto.NewPong(in.Token))
	case proto.InAI:
		return h.handleAI(ctx, c, in.Prompt)
	}
	return nil
}

func (h *Hub) handleChat(c *Client, text string) *Error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return validationError("Message cannot be empty.")
	}
	if utf8.RuneCountInString(trimmed) > maxChatRunes {
		return validationError("Message is too long (max 500 characters).")
	}

	// The rate check must precede the counter and the fan-out: a
	// rejected message is invisible to every other client.
	if ok, wait := c.limiter.Allow(time.Now()); !ok {
		return rateLimitError(fmt.Sprintf("Rate limit exceeded. Please wait %d seconds.", int64(wait.Seconds())))
	}

	h.stats.MessageBroadcast()
	h.metrics.MessagesTotal.Inc()

	// Server-confirmed echo: the sender receives its own message via
	// the same fan-out as everyone else.
	h.Broadcast(proto.NewChat(c.Name(), trimmed), uuid.Nil)

	h.log.Debug().Str("from", c.Name()).Str("client_id", c.ID.String()).Msg("chat broadcast")
	return nil
}

func (h *Hub) handleSetName(c *Client, name string) *Error {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < 2 || n > 32 {
		return validationError("Naam moet tussen 2 en 32 tekens zijn.")
	}
	for _, r := range trimmed {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' ' && r != '-' && r != '_' {
			return validationError("Naam mag alleen letters, cijfers, spaties, - en _ bevatten.")
		}
	}

	old, ok := h.registry.Rename(c.ID, trimmed)
	if !ok {
		return nil
	}

	c.Send(proto.NewAckName(trimmed))
	h.Broadcast(proto.NewSystem(fmt.Sprintf("%s heet nu %s.", old, trimmed)), c.ID)

	h.log.Debug().Str("old", old).Str("new", trimmed).Str("client_id", c.ID.String()).Msg("client renamed")
	return nil
}

func (h *Hub) handleStatus(c *Client) {
	uptime := h.stats.UptimeSeconds()
	messages := h.stats.MessagesSent()

	perSecond := 0.0
	if uptime > 0 {
		perSecond = float64(messages) / float64(uptime)
	}

	status := proto.Status{
		Type:              proto.OutStatus,
		Version:           Version,
		GoVersion:         runtime.Version(),
		OS:                runtime.GOOS,
		CPUCores:          runtime.NumCPU(),
		UptimeSeconds:     uptime,
		UserCount:         h.registry.Len(),
		PeakUsers:         h.stats.PeakUsers(),
		ConnectionsTotal:  h.stats.ConnectionsTotal(),
		MessagesSent:      messages,
		MessagesPerSecond: math.Round(perSecond*100) / 100,
		MemoryMB:          math.Round(h.stats.MemoryMB()*100) / 100,
		AIEnabled:         h.ai.Enabled(),
	}
	if h.ai.Enabled() {
		status.AIModel = h.ai.Model()
	}

	c.Send(status)
}

func (h *Hub) handleListUsers(c *Client) {
	snapshot := h.registry.Snapshot()
	users := make([]proto.UserInfo, 0, len(snapshot))
	for _, other := range snapshot {
		users = append(users, proto.UserInfo{
			ID:   other.ID.String(),
			Name: other.Name(),
			IP:   other.IP,
		})
	}
	c.Send(proto.ListUsers{Type: proto.OutListUsers, Users: users})
}

func (h *Hub) handleAI(ctx context.Context, c *Client, prompt string) *Error {
	from := c.Name()
	key := c.IP
	if key == "" {
		key = c.ID.String()
	}

	// The gateway call blocks only this connection's dispatch path; no
	// shared lock is held while it is in flight.
	resp, err := h.ai.Query(ctx, key, prompt)
	if err != nil {
		h.metrics.AIRequests.WithLabelValues("error").Inc()

		var aiErr *ai.Error
		if errors.As(err, &aiErr) {
			switch aiErr.Kind {
			case ai.ErrRateLimited:
				return rateLimitError(aiErr.Message)
			case ai.ErrInvalidPrompt:
				return validationError(aiErr.Message)
			default:
				return aiServiceError(aiErr.Message)
			}
		}
		return aiServiceError(err.Error())
	}
	h.metrics.AIRequests.WithLabelValues("ok").Inc()

	h.Broadcast(proto.AIAnswer{
		Type:       proto.OutAI,
		From:       from,
		Prompt:     prompt,
		Response:   resp.Content,
		ResponseMS: resp.ResponseMS,
		Tokens:     resp.Tokens,
		Cost:       resp.Cost,
		At:         proto.NowMillis(),
	}, uuid.Nil)

	h.log.Debug().Str("from", from).Int("prompt_len", len(prompt)).Msg("ai response broadcast")
	return nil
}
