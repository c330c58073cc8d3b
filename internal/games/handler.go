package games

import (
	"encoding/json"
	"errors"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	Service *Service
	log     *slog.Logger
}

func NewHandler(s *Service, log *slog.Logger) *Handler {
	return &Handler{Service: s, log: log}
}

// Routes mounts the Connections API; the caller applies auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateConnections)
	r.Get("/", h.ListOthers)
	r.Get("/mine", h.ListMine)
	r.Get("/play/{slug}", h.Play)
	r.Put("/play/{slug}/try_solve", h.TrySolve)
}

func (h *Handler) CreateConnections(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req CreateConnectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	game, err := h.Service.CreateConnections(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, game)
}

func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *Handler) ListOthers(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, mine bool) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	games, err := h.Service.ListConnections(r.Context(), userID, mine)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, games)
}

func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	game, err := h.Service.Play(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, game)
}

// TrySolve takes a JSON array of four clues.
func (h *Handler) TrySolve(w http.ResponseWriter, r *http.Request) {
	var guess []string
	if err := json.NewDecoder(r.Body).Decode(&guess); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.Service.TrySolve(r.Context(), chi.URLParam(r, "slug"), guess)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		http.Error(w, verrs.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidName), errors.Is(err, ErrDuplicateClue), errors.Is(err, ErrGuessMalformed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrGameNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrGameExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("Game request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
