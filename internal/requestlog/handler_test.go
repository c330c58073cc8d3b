package requestlog

import (
	"encoding/json"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(store Store) http.Handler {
	h := NewHandler(store, slog.Default())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(myMiddleware.WithUser(r.Context(), r.Header.Get("X-User"), "")))
		})
	})
	r.Route("/api/logs", h.Routes)
	return r
}

func get(h http.Handler, user, path string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-User", user)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandler_List(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{entries: []Entry{
		{ID: "a1", Method: "GET", URI: "/api/users/me", UserID: "alice", DateTime: 100},
		{ID: "a2", Method: "POST", URI: "/chat/channels/", UserID: "alice", DateTime: 200},
		{ID: "b1", Method: "GET", URI: "/api/users/me", UserID: "bob", DateTime: 150},
	}}
	h := newTestRouter(store)

	w := get(h, "alice", "/api/logs/")
	req.Equal(http.StatusOK, w.Code)
	var entries []Entry
	req.NoError(json.NewDecoder(w.Body).Decode(&entries))
	req.Equal([]Entry{store.entries[1], store.entries[0]}, entries)

	w = get(h, "alice", "/api/logs/?limit=1")
	req.Equal(http.StatusOK, w.Code)
	req.NoError(json.NewDecoder(w.Body).Decode(&entries))
	req.Len(entries, 1)
	req.Equal("a2", entries[0].ID)

	for _, bad := range []string{"0", "-3", "1001", "many"} {
		w = get(h, "alice", "/api/logs/?limit="+bad)
		req.Equal(http.StatusBadRequest, w.Code, bad)
	}
}

func TestHandler_Get(t *testing.T) {
	req := require.New(t)
	store := &fakeStore{entries: []Entry{
		{ID: "a1", Method: "GET", URI: "/api/users/me", UserID: "alice", DateTime: 100},
	}}
	h := newTestRouter(store)

	w := get(h, "alice", "/api/logs/a1")
	req.Equal(http.StatusOK, w.Code)
	var e Entry
	req.NoError(json.NewDecoder(w.Body).Decode(&e))
	req.Equal(store.entries[0], e)

	// Other users' entries do not exist for the caller.
	w = get(h, "bob", "/api/logs/a1")
	req.Equal(http.StatusNotFound, w.Code)
	w = get(h, "alice", "/api/logs/missing")
	req.Equal(http.StatusNotFound, w.Code)
}
