package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrRateLimited means the backend refused the call for quota reasons.
	ErrRateLimited = errors.New("backend rate limited")
	// ErrUnavailable means the backend could not be reached at all.
	ErrUnavailable = errors.New("backend unavailable")
)

// CompletionOptions are decoding settings. Backends ignore the ones they
// do not support.
type CompletionOptions struct {
	Temperature   float64
	ContextWindow int
	RepeatPenalty float64
}

// CompletionRequest is a single-turn completion with no prior turns.
// System duplicates the opening of Prompt for backends that accept a
// separate system message.
type CompletionRequest struct {
	System  string
	Prompt  string
	Options CompletionOptions
}

// TextBackend defines the interface for a text generation service
type TextBackend interface {
	// Name identifies the backend in logs and health output
	Name() string

	// Local reports whether the backend is a self-hosted model server
	Local() bool

	// ListModels returns the generation-capable models
	ListModels(ctx context.Context) ([]string, error)

	// Complete runs one blocking completion. Failures wrap ErrRateLimited
	// or ErrUnavailable when they can be classified.
	Complete(ctx context.Context, model string, req CompletionRequest) (string, error)
}

// classifyTransportError wraps an error returned by http.Client.Do.
// Timeouts stay unclassified so callers treat them as generic failures.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("request timed out: %w", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("request timed out: %w", err)
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// classifyStatus maps a non-200 HTTP status to an error.
func classifyStatus(code int, body string) error {
	switch code {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRateLimited, code, body)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, code, body)
	default:
		return fmt.Errorf("API request failed with status %d: %s", code, body)
	}
}
