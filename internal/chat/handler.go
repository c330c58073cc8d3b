package chat

import (
	"context"
	"encoding/json"
	"errors"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, log *slog.Logger) *Handler {
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true // browser clients are served from another origin
			},
		},
	}
}

// ServeWs upgrades an authenticated request and serves the socket until it
// closes. The auth middleware has already rejected bad credentials.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, username, ok := myMiddleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Warn("Websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	err = NewConn(h.hub, ws, userID, username).Serve(r.Context())
	h.log.Debug("Connection closed", "user_id", userID, "reason", err)
}

type channelIDRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
}

func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req CreateChannel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.hub.validate.Struct(req); err != nil {
		http.Error(w, describe(err), http.StatusBadRequest)
		return
	}
	if !req.Type.Valid() {
		http.Error(w, "unsupported channel type", http.StatusBadRequest)
		return
	}

	channel, err := h.hub.store.CreateChannel(r.Context(), req, userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, channel)
}

// ListChannels supports ?my_channels=true|false and ?subscribed=true|false.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	filter := ChannelFilter{UserID: userID}
	var err error
	if filter.Owned, err = optionalBool(r, "my_channels"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filter.Subscribed, err = optionalBool(r, "subscribed"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	channels, err := h.hub.store.ListChannels(r.Context(), filter)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if channels == nil {
		channels = []Channel{}
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.hub.store.Subscribe)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	h.changeSubscription(w, r, h.hub.store.Unsubscribe)
}

func (h *Handler) changeSubscription(w http.ResponseWriter, r *http.Request,
	apply func(ctx context.Context, channelID, userID string) (*Channel, error)) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req channelIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.hub.validate.Struct(req); err != nil {
		http.Error(w, describe(err), http.StatusBadRequest)
		return
	}

	channel, err := apply(r.Context(), req.ChannelID, userID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, channel)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrChannelExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrNotSubscribed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("Chat store failure", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func optionalBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New(key + " must be true or false")
	}
	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
