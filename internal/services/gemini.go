package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// generateContent is the method a model must support to be selectable.
const generateContent = "generateContent"

// GeminiBackend implements TextBackend for the hosted Gemini API
type GeminiBackend struct {
	client *genai.Client
	logger *slog.Logger
}

var _ TextBackend = (*GeminiBackend)(nil)

// NewGeminiBackend creates a client authenticated with apiKey
func NewGeminiBackend(ctx context.Context, apiKey string, logger *slog.Logger) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, logger: logger}, nil
}

func (g *GeminiBackend) Name() string { return "gemini" }

func (g *GeminiBackend) Local() bool { return false }

func (g *GeminiBackend) Close() error {
	return g.client.Close()
}

// ListModels returns models that support content generation
func (g *GeminiBackend) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	it := g.client.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGeminiError(err)
		}
		if slices.Contains(m.SupportedGenerationMethods, generateContent) {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// Complete starts a fresh chat session and sends the prompt as its only turn
func (g *GeminiBackend) Complete(ctx context.Context, model string, req CompletionRequest) (string, error) {
	gm := g.client.GenerativeModel(model)
	gm.SetTemperature(float32(req.Options.Temperature))

	cs := gm.StartChat()
	resp, err := cs.SendMessage(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", classifyGeminiError(err)
	}

	text := responseText(resp)
	if text == "" {
		return "", errors.New("no content returned from Gemini")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	return sb.String()
}

// classifyGeminiError maps API errors onto the backend sentinels. The
// message check covers errors the client returns without a status code.
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case http.StatusServiceUnavailable, http.StatusBadGateway:
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
