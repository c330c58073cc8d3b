package chat

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
)

// readPump pumps frames from the websocket connection into the hub. It
// returns when the socket fails or is closed.
func (c *Conn) readPump(ctx context.Context) error {
	defer c.hub.registry.RemoveIf(c.userID, c.outbox)

	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Requests run to completion even if this connection goes away meanwhile.
	reqCtx := context.WithoutCancel(ctx)

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return fmt.Errorf("read: %w", err)
		}

		if kind != websocket.TextMessage || !utf8.Valid(data) {
			c.log.Warn("Dropping non-text frame", "kind", kind, "size", len(data))
			continue
		}

		req, err := DecodeRequest(data)
		if err != nil {
			c.log.Warn("Dropping malformed frame", "error", err)
			continue
		}

		c.hub.Handle(reqCtx, c.userID, req)
	}
}

func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Frame exceeded maximum size", "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.log.Warn("Unexpected close", "error", err)
	default:
		c.log.Debug("Read loop ended", "error", err)
	}
}
