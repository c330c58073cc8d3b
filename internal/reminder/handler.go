package reminder

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

// Routes mounts the reminder API under its parent; the caller applies auth.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.CreateReminder)
	r.Get("/", h.ListReminders)
	r.Get("/{reminderID}", h.GetReminder)
	r.Put("/{reminderID}", h.UpdateReminder)
	r.Delete("/{reminderID}", h.DeleteReminder)

	r.Post("/categories", h.CreateCategory)
	r.Get("/categories", h.ListCategories)
	r.Delete("/categories/{categoryID}", h.DeleteCategory)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req CreateCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	category, err := h.Service.CreateCategory(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, category)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	categories, err := h.Service.ListCategories(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	if err := h.Service.DeleteCategory(r.Context(), userID, chi.URLParam(r, "categoryID")); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req CreateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reminder, err := h.Service.CreateReminder(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reminder)
}

// ListReminders supports ?category=<id>.
func (h *Handler) ListReminders(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	reminders, err := h.Service.ListReminders(r.Context(), ListFilter{
		UserID:     userID,
		CategoryID: r.URL.Query().Get("category"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reminders)
}

func (h *Handler) GetReminder(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	reminder, err := h.Service.GetReminder(r.Context(), userID, chi.URLParam(r, "reminderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reminder)
}

func (h *Handler) UpdateReminder(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	var req UpdateReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reminder, err := h.Service.UpdateReminder(r.Context(), userID, chi.URLParam(r, "reminderID"), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reminder)
}

func (h *Handler) DeleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, _, _ := myMiddleware.UserFromContext(r.Context())

	if err := h.Service.DeleteReminder(r.Context(), userID, chi.URLParam(r, "reminderID")); err != nil {
		h.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		http.Error(w, verrs.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrEmptyUpdate), errors.Is(err, ErrUnknownCategory), errors.Is(err, ErrInvalidPriority):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrReminderNotFound), errors.Is(err, ErrCategoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrCategoryExists), errors.Is(err, ErrCategoryInUse):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("Reminder request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
