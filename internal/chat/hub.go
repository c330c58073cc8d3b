package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	OutboxSize       int   // buffered responses per connection
	MaxMessageSize   int64 // largest inbound frame in bytes
	MaxContentLength int   // largest message body in characters
	DefaultPageSize  int
	MaxPageSize      int
}

func DefaultConfig() Config {
	return Config{
		OutboxSize:       256,
		MaxMessageSize:   8 << 10,
		MaxContentLength: 4000,
		DefaultPageSize:  50,
		MaxPageSize:      200,
	}
}

// Hub executes chat requests on behalf of connected users. It owns no
// goroutine: each connection's reader calls into it, and it reaches other
// connections only through the Registry.
type Hub struct {
	registry *Registry
	store    Store
	log      *slog.Logger
	cfg      Config
	validate *validator.Validate
}

func NewHub(registry *Registry, store Store, log *slog.Logger, cfg Config) *Hub {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Hub{
		registry: registry,
		store:    store,
		log:      log,
		cfg:      cfg,
		validate: v,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Store() Store        { return h.store }
func (h *Hub) Config() Config      { return h.cfg }

// Handle dispatches one decoded request from userID.
func (h *Hub) Handle(ctx context.Context, userID string, req Request) {
	switch r := req.(type) {
	case CreateMessage:
		h.CreateMessage(ctx, userID, r)
	case GetChatState:
		h.ChatState(ctx, userID, r)
	default:
		h.log.Warn("Unhandled request type", "user_id", userID, "type", fmt.Sprintf("%T", req))
	}
}

// CreateMessage persists a message for a subscriber of the target channel,
// fans it out to every connected subscriber and then acks the requester on
// whatever connection they hold at that point. Exactly one ack is attempted
// per call; the returned Ack is the one that was sent.
func (h *Hub) CreateMessage(ctx context.Context, userID string, req CreateMessage) Ack {
	ack := h.createMessage(ctx, userID, req)
	h.deliver(userID, SendAck{Ack: ack})
	return ack
}

func (h *Hub) createMessage(ctx context.Context, userID string, req CreateMessage) Ack {
	channel, err := h.store.GetChannelByID(ctx, req.ChannelID)
	if err != nil {
		if !errors.Is(err, ErrChannelNotFound) {
			h.log.Error("Channel lookup failed", "channel_id", req.ChannelID, "error", err)
		}
		return Ack{StatusCode: 404, Msg: msgChannelNotFound}
	}

	if !channel.HasSubscriber(userID) {
		return Ack{StatusCode: 400, Msg: msgNotSubscribed}
	}

	if err := h.validateMessage(req); err != nil {
		return Ack{StatusCode: 400, Msg: "Invalid chat message: " + err.Error()}
	}

	msg, err := h.store.CreateMessage(ctx, req, userID)
	if err != nil {
		h.log.Error("Message insert failed", "channel_id", channel.ID, "user_id", userID, "error", err)
		return Ack{StatusCode: 500, Msg: msgCreateFailed}
	}

	delivered := h.fanout(channel.Subscribers, *msg)
	h.log.Debug("Message fanned out",
		"message_id", msg.ID,
		"channel_id", channel.ID,
		"subscribers", len(channel.Subscribers),
		"delivered", delivered)

	return Ack{StatusCode: 200, Msg: fmt.Sprintf("Created chat message with ID %s", msg.ID)}
}

// fanout pushes msg to every subscriber that currently has a connection.
// Offline subscribers are skipped and a failing outbox never stops the loop.
func (h *Hub) fanout(subscribers []string, msg Message) int {
	delivered := 0
	for _, subscriber := range subscribers {
		sender, ok := h.registry.Lookup(subscriber)
		if !ok {
			continue
		}
		if err := sender.Send(SendChatMessage{Message: msg}); err != nil {
			h.log.Warn("Fanout send failed", "user_id", subscriber, "message_id", msg.ID, "error", err)
			h.evictIfOverflowed(subscriber, sender, err)
			continue
		}
		delivered++
	}
	return delivered
}

// ChatState answers a history request with one SendChatState page, or with
// an error Ack when the request cannot be served.
func (h *Hub) ChatState(ctx context.Context, userID string, req GetChatState) Response {
	resp := h.chatState(ctx, userID, req)
	h.deliver(userID, resp)
	return resp
}

func (h *Hub) chatState(ctx context.Context, userID string, req GetChatState) Response {
	channel, err := h.store.GetChannelByID(ctx, req.ChannelID)
	if err != nil {
		if !errors.Is(err, ErrChannelNotFound) {
			h.log.Error("Channel lookup failed", "channel_id", req.ChannelID, "error", err)
		}
		return SendAck{Ack: Ack{StatusCode: 404, Msg: msgChannelNotFound}}
	}
	if !channel.HasSubscriber(userID) {
		return SendAck{Ack: Ack{StatusCode: 400, Msg: msgNotSubscribed}}
	}

	limit := h.pageSize(req.MessageCount)
	messages, err := h.store.MessagesBefore(ctx, channel.ID, req.StartingMessage, limit)
	switch {
	case errors.Is(err, ErrMessageNotFound):
		return SendAck{Ack: Ack{StatusCode: 404, Msg: msgCursorNotFound}}
	case err != nil:
		h.log.Error("History load failed", "channel_id", channel.ID, "error", err)
		return SendAck{Ack: Ack{StatusCode: 500, Msg: msgStateFailed}}
	}

	state := ChatState{ChannelID: channel.ID, Messages: messages}
	if state.Messages == nil {
		state.Messages = []Message{}
	}
	if len(messages) == limit {
		state.NextCursor = messages[0].ID
	}
	return SendChatState{State: state}
}

func (h *Hub) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return h.cfg.DefaultPageSize
	case requested > h.cfg.MaxPageSize:
		return h.cfg.MaxPageSize
	default:
		return requested
	}
}

// deliver re-resolves userID at send time; if they have gone offline the
// response is dropped.
func (h *Hub) deliver(userID string, resp Response) {
	sender, ok := h.registry.Lookup(userID)
	if !ok {
		h.log.Debug("Requester offline, dropping response", "user_id", userID, "type", resp.responseType())
		return
	}
	if err := sender.Send(resp); err != nil {
		h.log.Warn("Response send failed", "user_id", userID, "type", resp.responseType(), "error", err)
		h.evictIfOverflowed(userID, sender, err)
	}
}

// evictIfOverflowed deregisters a sender whose outbox just overflowed. Its
// writer is already shutting the socket; removing it here means later
// fanouts skip it instead of piling onto a dead queue.
func (h *Hub) evictIfOverflowed(userID string, sender Sender, err error) {
	if errors.Is(err, ErrOutboxFull) && h.registry.RemoveIf(userID, sender) {
		h.log.Info("Disconnected slow client", "user_id", userID)
	}
}

// validateMessage runs after the channel and membership gates, so only a
// subscriber ever sees a validation failure.
func (h *Hub) validateMessage(req CreateMessage) error {
	if err := h.validate.Var(req.Contents, fmt.Sprintf("max=%d", h.cfg.MaxContentLength)); err != nil {
		return fmt.Errorf("contents longer than %d characters", h.cfg.MaxContentLength)
	}
	return nil
}

// describe flattens validator errors into "field tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+" is "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
