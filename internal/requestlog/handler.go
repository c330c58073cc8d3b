package requestlog

import (
	"encoding/json"
	"errors"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// Routes mounts the caller's own log; the caller applies auth.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{logID}", h.Get)
}

// List returns the newest entries first; ?limit= caps the count.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLimit {
			http.Error(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.store.ListForUser(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("Failed to list request logs", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	entry, err := h.store.GetForUser(r.Context(), chi.URLParam(r, "logID"), userID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error("Failed to read request log", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
