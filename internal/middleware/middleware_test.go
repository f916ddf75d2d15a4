package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jwebster45206/party-engine/internal/auth"
	"github.com/jwebster45206/party-engine/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubAuthenticator struct {
	users map[string]*state.User
	err   error
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, token string) (*state.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	u, ok := s.users[token]
	if !ok {
		return nil, auth.ErrUnauthenticated
	}
	return u, nil
}

func TestRequestID(t *testing.T) {
	var seen *slog.Logger
	h := RequestID(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = LoggerFrom(r.Context(), nil)
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Len(t, rec.Header().Get(RequestIDHeader), 36)
		assert.NotNil(t, seen)
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestLoggerFrom_Fallback(t *testing.T) {
	fallback := quietLogger()
	assert.Same(t, fallback, LoggerFrom(context.Background(), fallback))
}

func TestLogger_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	h := Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		RequestID(base),
		Logger(base),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/poll", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Request handled", entry["msg"])
	assert.Equal(t, "/poll", entry["path"])
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), entry["request_id"])
}

func TestSessionToken(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *http.Request)
		want  string
	}{
		{name: "none", setup: func(r *http.Request) {}, want: ""},
		{
			name:  "cookie",
			setup: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"}) },
			want:  "tok",
		},
		{
			name:  "bearer",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok2") },
			want:  "tok2",
		},
		{
			name:  "other scheme",
			setup: func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			want:  "",
		},
		{
			name: "cookie wins",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "c"})
				r.Header.Set("Authorization", "Bearer b")
			},
			want: "c",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(req)
			assert.Equal(t, tt.want, SessionToken(req))
		})
	}
}

func TestRequireSession(t *testing.T) {
	ana := state.NewUser("ana", "hash")
	authn := &stubAuthenticator{users: map[string]*state.User{"good": ana}}

	var got *state.User
	h := RequireSession(authn, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = UserFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "good"})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, ana.ID, got.ID)
	})

	t.Run("missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Not logged in"}`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		failing := RequireSession(&stubAuthenticator{err: errors.New("redis down")}, quietLogger())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		rec := httptest.NewRecorder()
		failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestUserFrom_Empty(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	u := state.NewUser("bo", "h")
	got, ok := UserFrom(WithUser(context.Background(), u))
	assert.True(t, ok)
	assert.Equal(t, u, got)
}
