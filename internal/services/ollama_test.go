package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOllamaBackend_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen2.5:1.5b"},{"name":"llama3.2:latest"}]}`))
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL+"/", quietLogger())
	models, err := backend.ListModels(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"qwen2.5:1.5b", "llama3.2:latest"}, models)
	assert.True(t, backend.Local())
	assert.Equal(t, "ollama", backend.Name())
}

func TestOllamaBackend_Complete(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"The door creaks open."},"done":true}`))
	}))
	defer server.Close()

	backend := NewOllamaBackend(server.URL, quietLogger())
	text, err := backend.Complete(context.Background(), "qwen2.5:1.5b", CompletionRequest{
		System: "You are the master.",
		Prompt: "You are the master.\n\nHistory:\n\nACTION:\nopen door\n\nMASTER:",
		Options: CompletionOptions{
			Temperature:   0.7,
			ContextWindow: 2048,
			RepeatPenalty: 1.1,
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "The door creaks open.", text)

	assert.Equal(t, "qwen2.5:1.5b", got.Model)
	assert.False(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.InDelta(t, 0.7, got.Options.Temperature, 0.0001)
	assert.Equal(t, 2048, got.Options.NumCtx)
	assert.InDelta(t, 1.1, got.Options.RepeatPenalty, 0.0001)
}

func TestOllamaBackend_CompleteWithoutSystem(t *testing.T) {
	var got ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"message":{"content":"ok"}}`))
	}))
	defer server.Close()

	_, err := NewOllamaBackend(server.URL, quietLogger()).
		Complete(context.Background(), "m", CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
}

func TestOllamaBackend_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"service unavailable", http.StatusServiceUnavailable, ErrUnavailable},
		{"bad request", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":"nope"}`, tt.status)
			}))
			defer server.Close()

			_, err := NewOllamaBackend(server.URL, quietLogger()).
				Complete(context.Background(), "m", CompletionRequest{Prompt: "p"})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NotErrorIs(t, err, ErrRateLimited)
				assert.NotErrorIs(t, err, ErrUnavailable)
				assert.Contains(t, err.Error(), "nope")
			}
		})
	}
}

func TestOllamaBackend_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	backend := NewOllamaBackend(url, quietLogger())

	_, err := backend.Complete(context.Background(), "m", CompletionRequest{Prompt: "p"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = backend.ListModels(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOllamaBackend_TimeoutIsNotUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewOllamaBackend(server.URL, quietLogger()).
		Complete(ctx, "m", CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrRateLimited)
}
