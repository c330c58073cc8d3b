package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
)

// Conn owns one upgraded socket from registration to teardown. Its reader
// and writer run as separate goroutines; whichever ends first takes the
// other down with it.
type Conn struct {
	hub      *Hub
	ws       *websocket.Conn
	outbox   *Outbox
	userID   string
	username string
	log      *slog.Logger
}

func NewConn(hub *Hub, ws *websocket.Conn, userID, username string) *Conn {
	return &Conn{
		hub:      hub,
		ws:       ws,
		outbox:   NewOutbox(hub.cfg.OutboxSize),
		userID:   userID,
		username: username,
		log:      hub.log.With("user_id", userID, "remote", ws.RemoteAddr().String()),
	}
}

func (c *Conn) Outbox() *Outbox { return c.outbox }

// Serve registers the connection, runs it until either pump stops or ctx
// is cancelled, then deregisters. It returns why the connection ended.
func (c *Conn) Serve(ctx context.Context) error {
	registry := c.hub.registry
	if _, replaced := registry.Register(c.userID, c.outbox); replaced {
		c.log.Info("Replaced previous connection for user")
	}
	c.log.Info("Client connected", "username", c.username, "online", registry.Len())

	defer func() {
		c.outbox.Close()
		_ = c.ws.Close()
		registry.RemoveIf(c.userID, c.outbox)
		c.log.Info("Client disconnected", "online", registry.Len())
	}()

	// Both pumps always return a non-nil error, so the first one to finish
	// cancels gctx.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(gctx) })
	g.Go(func() error { return c.writePump(gctx) })

	<-gctx.Done()
	// Unblocks a reader parked in ReadMessage while leaving the socket
	// writable, so the writer can still send its close frame. The deferred
	// Close runs only once both pumps have returned.
	_ = c.ws.SetReadDeadline(time.Now())
	return g.Wait()
}
