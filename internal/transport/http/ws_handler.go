package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/pa1bh/chatserver/internal/core"
	"github.com/pa1bh/chatserver/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to a hub client.
type WSHandler struct {
	hub        *core.Hub
	trustProxy bool
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, trustProxy bool, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, trustProxy: trustProxy, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ip := clientIP(r, trustForwardHeaders(r, h.trustProxy))

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := h.hub.NewClient(ip)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- h.writeLoop(ctx, conn, client)
	}()

	// A transport error, a close frame and context cancellation all end
	// the loop the same way; none of them is escalated beyond this
	// connection.
	readErr := h.readLoop(ctx, conn, client)

	// Removal broadcasts the departure under the current name and closes
	// the outbound queue, which ends the write loop.
	h.hub.Unregister(client.ID)
	cancel()
	<-writeErr

	status := websocket.StatusNormalClosure
	reason := "closing"
	if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, io.EOF) {
		switch s := websocket.CloseStatus(readErr); {
		case s == websocket.StatusNormalClosure || s == websocket.StatusGoingAway:
			// clean close from the peer
		case s != -1:
			status = s
		default:
			status = websocket.StatusInternalError
			reason = "internal error"
			h.log.Debug().Err(readErr).Str("client_id", client.ID.String()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop reads frames until the connection ends. Text frames go to
// the dispatcher; rejections are unicast back without closing anything.
// Transport-level ping control frames are answered by the websocket
// library while Read is pending.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if derr := h.hub.Dispatch(ctx, client, data); derr != nil {
			client.Send(proto.NewError(derr.Message))
		}
	}
}

// writeLoop drains the client's bounded outbound queue onto the socket.
// It owns that queue exclusively; it ends when the queue closes.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case data, ok := <-client.Outbound():
			if !ok {
				return nil
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
