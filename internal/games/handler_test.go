package games

import (
	"encoding/json"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter() http.Handler {
	h := NewHandler(NewService(&fakeStore{}), slog.Default())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(myMiddleware.WithUser(r.Context(), r.Header.Get("X-User"), "")))
		})
	})
	r.Route("/api/games/connections", h.Routes)
	return r
}

func call(h http.Handler, user, method, path, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandler_ConnectionsFlow(t *testing.T) {
	req := require.New(t)
	h := newTestRouter()

	body, err := json.Marshal(puzzle("Friday Mix"))
	req.NoError(err)

	w := call(h, "alice", http.MethodPost, "/api/games/connections/", string(body))
	req.Equal(http.StatusCreated, w.Code)
	var created Connections
	req.NoError(json.NewDecoder(w.Body).Decode(&created))
	req.Equal("friday-mix", created.Slug)

	w = call(h, "bob", http.MethodPost, "/api/games/connections/", string(body))
	req.Equal(http.StatusConflict, w.Code)
	w = call(h, "bob", http.MethodPost, "/api/games/connections/", `{"puzzle_name":"half","connection_categories":[]}`)
	req.Equal(http.StatusBadRequest, w.Code)

	w = call(h, "alice", http.MethodGet, "/api/games/connections/mine", "")
	req.Equal(http.StatusOK, w.Code)
	var summaries []Summary
	req.NoError(json.NewDecoder(w.Body).Decode(&summaries))
	req.Equal([]Summary{created.Summary()}, summaries)
	req.NotContains(w.Body.String(), "category_clues")

	w = call(h, "bob", http.MethodGet, "/api/games/connections/", "")
	req.NoError(json.NewDecoder(w.Body).Decode(&summaries))
	req.Equal([]Summary{created.Summary()}, summaries)

	w = call(h, "bob", http.MethodGet, "/api/games/connections/play/friday-mix", "")
	req.Equal(http.StatusOK, w.Code)
	var playable Playable
	req.NoError(json.NewDecoder(w.Body).Decode(&playable))
	req.Len(playable.ScrambledClues, 16)
	req.NotContains(w.Body.String(), "Cheeses")

	w = call(h, "bob", http.MethodPut, "/api/games/connections/play/friday-mix/try_solve", `["brie","feta","gouda","edam"]`)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"row_name":"Cheeses","correct_guess":true}`, w.Body.String())

	w = call(h, "bob", http.MethodPut, "/api/games/connections/play/friday-mix/try_solve", `["brie","feta","gouda","mars"]`)
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"row_name":null,"correct_guess":false}`, w.Body.String())

	w = call(h, "bob", http.MethodPut, "/api/games/connections/play/friday-mix/try_solve", `["brie"]`)
	req.Equal(http.StatusBadRequest, w.Code)
	w = call(h, "bob", http.MethodGet, "/api/games/connections/play/unknown", "")
	req.Equal(http.StatusNotFound, w.Code)
}
