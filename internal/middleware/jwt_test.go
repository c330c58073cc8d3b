package myMiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	tokens map[string]string
}

func (s stubValidator) ValidateToken(_ context.Context, token string) (string, string, error) {
	id, ok := s.tokens[token]
	if !ok {
		return "", "", errors.New("bad token")
	}
	return id, "name-" + id, nil
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		header string
		want   string
	}{
		{"bearer header", "/ws", "Bearer abc", "abc"},
		{"lowercase scheme", "/ws", "bearer abc", "abc"},
		{"token query", "/ws?token=q1", "", "q1"},
		{"auth_token query", "/ws?auth_token=q2", "", "q2"},
		{"header wins over query", "/ws?token=q1", "Bearer abc", "abc"},
		{"malformed header falls back", "/ws?token=q1", "abc", "q1"},
		{"nothing", "/ws", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestAuthMiddleware_Handle(t *testing.T) {
	req := require.New(t)
	am := NewAuthMiddleware(stubValidator{tokens: map[string]string{"good": "u1"}})

	var gotID, gotName string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotName, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := am.Handle(next)

	// Given no token
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	// Given a bad token
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?token=bad", nil))
	req.Equal(http.StatusUnauthorized, rec.Code)

	// Given a good token
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x?auth_token=good", nil))
	req.Equal(http.StatusNoContent, rec.Code)
	req.Equal("u1", gotID)
	req.Equal("name-u1", gotName)
}

func TestUserFromContext_Missing(t *testing.T) {
	_, _, ok := UserFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.False(t, ok)
}
