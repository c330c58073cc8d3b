package user

import (
	"encoding/json"
	myMiddleware "homelab/internal/middleware"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	return w
}

func TestHandler_RegisterLoginMe(t *testing.T) {
	req := require.New(t)
	h := NewHandler(NewService(newFakeStore(), "secret", time.Hour), slog.Default())

	w := post(h.Register, `{"username":"alice","password":"correct horse"}`)
	req.Equal(http.StatusCreated, w.Code)
	var reg RegisterResponse
	req.NoError(json.NewDecoder(w.Body).Decode(&reg))

	w = post(h.Register, `{"username":"alice","password":"correct horse"}`)
	req.Equal(http.StatusConflict, w.Code)

	w = post(h.Register, `{"username":"x","password":"y"}`)
	req.Equal(http.StatusBadRequest, w.Code)

	w = post(h.Login, `{"username":"alice","password":"nope"}`)
	req.Equal(http.StatusUnauthorized, w.Code)

	w = post(h.Login, `{"username":"alice","password":"correct horse"}`)
	req.Equal(http.StatusOK, w.Code)
	var login LoginResponse
	req.NoError(json.NewDecoder(w.Body).Decode(&login))
	req.Equal(reg.ID, login.ID)

	r := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	r = r.WithContext(myMiddleware.WithUser(r.Context(), reg.ID, "alice"))
	w = httptest.NewRecorder()
	h.Me(w, r)
	req.Equal(http.StatusOK, w.Code)
	req.Contains(w.Body.String(), `"username":"alice"`)
	req.NotContains(w.Body.String(), "password")
}

func TestAuthMiddleware_RefusesDeletedUser(t *testing.T) {
	req := require.New(t)
	store := newFakeStore()
	s := NewService(store, "secret", time.Hour)
	h := NewHandler(s, slog.Default())
	protected := myMiddleware.NewAuthMiddleware(s).Handle(http.HandlerFunc(h.Me))

	w := post(h.Register, `{"username":"alice","password":"correct horse"}`)
	req.Equal(http.StatusCreated, w.Code)
	var reg RegisterResponse
	req.NoError(json.NewDecoder(w.Body).Decode(&reg))
	w = post(h.Login, `{"username":"alice","password":"correct horse"}`)
	var login LoginResponse
	req.NoError(json.NewDecoder(w.Body).Decode(&login))

	me := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
		r.Header.Set("Authorization", "Bearer "+login.AccessToken)
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, r)
		return w
	}
	req.Equal(http.StatusOK, me().Code)

	store.mu.Lock()
	delete(store.users, reg.ID)
	store.mu.Unlock()

	req.Equal(http.StatusUnauthorized, me().Code)
}

func TestHandler_SearchUsers(t *testing.T) {
	req := require.New(t)
	h := NewHandler(NewService(newFakeStore(), "secret", time.Hour), slog.Default())

	w := httptest.NewRecorder()
	h.SearchUsers(w, httptest.NewRequest(http.MethodGet, "/api/users/search", nil))
	req.Equal(http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.SearchUsers(w, httptest.NewRequest(http.MethodGet, "/api/users/search?q=bo", nil))
	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`[]`, w.Body.String())
}
