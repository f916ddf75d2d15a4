package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jwebster45206/party-engine/pkg/chat"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// OllamaBackend implements TextBackend for a local Ollama server
type OllamaBackend struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ TextBackend = (*OllamaBackend)(nil)

// NewOllamaBackend creates a new Ollama backend instance
func NewOllamaBackend(baseURL string, logger *slog.Logger) *OllamaBackend {
	return &OllamaBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

func (s *OllamaBackend) Name() string { return "ollama" }

func (s *OllamaBackend) Local() bool { return true }

// ListModels returns the models already pulled on the server
func (s *OllamaBackend) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode, readErrorBody(resp.Body))
	}

	var tagsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	names := make([]string, 0, len(tagsResp.Models))
	for _, m := range tagsResp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

type ollamaChatRequest struct {
	Model    string             `json:"model"`
	Messages []chat.ChatMessage `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  ollamaOptions      `json:"options"`
}

type ollamaOptions struct {
	Temperature   float64 `json:"temperature"`
	NumCtx        int     `json:"num_ctx,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

// Complete sends a non-streaming chat request
func (s *OllamaBackend) Complete(ctx context.Context, model string, cr CompletionRequest) (string, error) {
	messages := make([]chat.ChatMessage, 0, 2)
	if cr.System != "" {
		messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleSystem, Content: cr.System})
	}
	messages = append(messages, chat.ChatMessage{Role: chat.ChatRoleUser, Content: cr.Prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature:   cr.Options.Temperature,
			NumCtx:        cr.Options.ContextWindow,
			RepeatPenalty: cr.Options.RepeatPenalty,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := s.baseURL + "/api/chat"
	s.logger.Debug("Making Ollama chat request",
		"url", url,
		"model", model,
		"message_count", len(messages))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		errBody := readErrorBody(resp.Body)
		s.logger.Error("Ollama API returned error",
			"status_code", resp.StatusCode,
			"response_body", errBody)
		return "", classifyStatus(resp.StatusCode, errBody)
	}

	var ollamaResp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return ollamaResp.Message.Content, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}
