package chat_test

import (
	"context"
	"errors"
	"homelab/internal/chat"
	myMiddleware "homelab/internal/middleware"
	"homelab/internal/store/memory"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// tokenIsUserID accepts any token naming a known user.
type tokenIsUserID map[string]bool

func (v tokenIsUserID) ValidateToken(_ context.Context, token string) (string, string, error) {
	if !v[token] {
		return "", "", errors.New("unknown user")
	}
	return token, strings.ToUpper(token), nil
}

type testServer struct {
	srv      *httptest.Server
	registry *chat.Registry
	store    *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServer(t, func(*http.Server) {})
}

// startTestServer lets a test adjust the http.Server before it starts.
func startTestServer(t *testing.T, configure func(*http.Server)) *testServer {
	t.Helper()
	registry := chat.NewRegistry()
	store := memory.New()
	hub := chat.NewHub(registry, store, slog.Default(), chat.DefaultConfig())
	handler := chat.NewHandler(hub, slog.Default())
	auth := myMiddleware.NewAuthMiddleware(tokenIsUserID{"alice": true, "bob": true, "carol": true})

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/chat/ws", handler.ServeWs)
	})

	srv := httptest.NewUnstartedServer(r)
	configure(srv.Config)
	srv.Start()
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, registry: registry, store: store}
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/chat/ws?token=" + token
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// connect dials and waits until the server has registered the new socket.
func (ts *testServer) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	before, _ := ts.registry.Lookup(userID)
	ws := ts.dial(t, userID)
	require.Eventually(t, func() bool {
		current, ok := ts.registry.Lookup(userID)
		return ok && current != before
	}, 2*time.Second, 5*time.Millisecond)
	return ws
}

func (ts *testServer) channel(t *testing.T, owner string, members ...string) *chat.Channel {
	t.Helper()
	ctx := context.Background()
	c, err := ts.store.CreateChannel(ctx, chat.CreateChannel{Slug: "room", Type: chat.Group}, owner)
	require.NoError(t, err)
	for _, m := range members {
		c, err = ts.store.Subscribe(ctx, c.ID, m)
		require.NoError(t, err)
	}
	return c
}

func send(t *testing.T, ws *websocket.Conn, req chat.Request) {
	t.Helper()
	frame, err := chat.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, frame))
}

func receive(t *testing.T, ws *websocket.Conn) chat.Response {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	resp, err := chat.DecodeResponse(data)
	require.NoError(t, err)
	return resp
}

func requireSilent(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := ws.ReadMessage()
	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	require.True(t, netErr.Timeout())
}

func TestSocket_MessageReachesEverySubscriber(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	c := ts.channel(t, "alice", "bob")
	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")
	carol := ts.connect(t, "carol")

	send(t, alice, chat.CreateMessage{ChannelID: c.ID, Contents: "hello"})

	got := receive(t, alice)
	req.IsType(chat.SendChatMessage{}, got)
	msg := got.(chat.SendChatMessage).Message
	req.Equal("hello", msg.Contents)
	req.Equal("alice", msg.AuthorID)
	req.Equal(c.ID, msg.ChannelID)

	req.Equal(chat.SendAck{Ack: chat.Ack{StatusCode: 200, Msg: "Created chat message with ID " + msg.ID}}, receive(t, alice))
	req.Equal(chat.SendChatMessage{Message: msg}, receive(t, bob))
	requireSilent(t, carol)
}

func TestSocket_NonMemberIsRefused(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	c := ts.channel(t, "bob")
	alice := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")

	send(t, alice, chat.CreateMessage{ChannelID: c.ID, Contents: "let me in"})

	req.Equal(chat.SendAck{Ack: chat.Ack{StatusCode: 400, Msg: "You are not in this chat channel"}}, receive(t, alice))
	requireSilent(t, bob)

	page, err := ts.store.MessagesBefore(context.Background(), c.ID, "", 10)
	req.NoError(err)
	req.Empty(page)
}

func TestSocket_ReconnectReplacesOldSocket(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	c := ts.channel(t, "alice", "bob")
	first := ts.connect(t, "alice")
	second := ts.connect(t, "alice")
	bob := ts.connect(t, "bob")
	req.Equal(2, ts.registry.Len())

	send(t, bob, chat.CreateMessage{ChannelID: c.ID, Contents: "ping"})

	req.IsType(chat.SendChatMessage{}, receive(t, second))
	requireSilent(t, first)

	// Closing the stale socket leaves the live one registered.
	req.NoError(first.Close())
	req.Never(func() bool {
		_, ok := ts.registry.Lookup("alice")
		return !ok
	}, 200*time.Millisecond, 10*time.Millisecond)

	send(t, bob, chat.CreateMessage{ChannelID: c.ID, Contents: "still there?"})
	req.IsType(chat.SendChatMessage{}, receive(t, second))
}

func TestSocket_MalformedFramesAreDropped(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	c := ts.channel(t, "alice")
	alice := ts.connect(t, "alice")

	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	req.NoError(alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"Shout","data":{}}`)))
	req.NoError(alice.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00}))

	// The connection survives and keeps serving.
	send(t, alice, chat.GetChatState{ChannelID: c.ID})
	req.Equal(chat.SendChatState{State: chat.ChatState{ChannelID: c.ID, Messages: []chat.Message{}}}, receive(t, alice))
}

func TestSocket_DisconnectDeregisters(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.connect(t, "alice")

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		_, ok := ts.registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSocket_WriteFailureDeregisters(t *testing.T) {
	req := require.New(t)
	serverConns := make(chan net.Conn, 1)
	ts := startTestServer(t, func(srv *http.Server) {
		srv.ConnState = func(c net.Conn, state http.ConnState) {
			if state == http.StateNew {
				serverConns <- c
			}
		}
	})
	c := ts.channel(t, "alice")
	alice := ts.connect(t, "alice")

	// Shut the server's sending half: its reader keeps working, but the
	// next frame the writer emits fails.
	serverConn := <-serverConns
	tcp, ok := serverConn.(*net.TCPConn)
	req.True(ok)
	req.NoError(tcp.CloseWrite())

	send(t, alice, chat.GetChatState{ChannelID: c.ID})

	req.Eventually(func() bool {
		_, ok := ts.registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
	req.Zero(ts.registry.Len())
}

func TestSocket_ShutdownSendsCloseFrame(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts := startTestServer(t, func(srv *http.Server) {
		srv.BaseContext = func(net.Listener) context.Context { return ctx }
	})
	alice := ts.connect(t, "alice")

	cancel()

	req.NoError(alice.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := alice.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	req.Eventually(func() bool {
		return ts.registry.Len() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSocket_OverflowClosesWithTryAgainLater(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice := ts.connect(t, "alice")

	sender, ok := ts.registry.Lookup("alice")
	req.True(ok)
	outbox, ok := sender.(*chat.Outbox)
	req.True(ok)
	// Overflow and Close both end the outbox the same way.
	outbox.Close()

	req.NoError(alice.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := alice.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseTryAgainLater), "got %v", err)
	req.Eventually(func() bool {
		_, ok := ts.registry.Lookup("alice")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSocket_RejectsBadToken(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/chat/ws?token=mallory"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
	require.Zero(t, ts.registry.Len())
}
