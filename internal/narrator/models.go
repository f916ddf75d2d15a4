package narrator

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jwebster45206/party-engine/internal/services"
)

// ModelPolicy describes how the model is picked at startup.
type ModelPolicy struct {
	Preferences []string // tried in order, exact or prefix match
	Hint        string   // substring for the fast tier, e.g. "flash"
	Default     string   // used when nothing can be listed
	ListRetries uint     // extra listing attempts for unavailable backends
}

// GeminiPolicy is the default policy for the hosted backend.
func GeminiPolicy() ModelPolicy {
	return ModelPolicy{
		Preferences: []string{
			"models/gemini-2.5-flash",
			"models/gemini-2.0-flash",
			"models/gemini-flash-latest",
			"models/gemini-1.5-flash",
			"models/gemini-pro",
		},
		Hint:    "flash",
		Default: "gemini-pro",
	}
}

// OllamaPolicy is the default policy for a local model server.
func OllamaPolicy() ModelPolicy {
	return ModelPolicy{
		Preferences: []string{"qwen2.5:1.5b", "llama3.2", "mistral"},
		Default:     "qwen2.5:1.5b",
		ListRetries: 4,
	}
}

// WithOverrides replaces non-empty fields.
func (p ModelPolicy) WithOverrides(preferences []string, hint, def string) ModelPolicy {
	if len(preferences) > 0 {
		p.Preferences = preferences
	}
	if hint != "" {
		p.Hint = hint
	}
	if def != "" {
		p.Default = def
	}
	return p
}

// SelectModel picks the model once at startup. It never fails: any
// problem falls back to policy.Default and is logged.
func SelectModel(ctx context.Context, backend services.TextBackend, policy ModelPolicy, logger *slog.Logger) string {
	available, err := listWithRetry(ctx, backend, policy.ListRetries)
	if err != nil {
		logger.Warn("Could not list models, using default",
			"backend", backend.Name(),
			"default", policy.Default,
			"error", err)
		return policy.Default
	}
	if len(available) == 0 {
		logger.Warn("Backend reported no models, using default",
			"backend", backend.Name(),
			"default", policy.Default)
		return policy.Default
	}

	model, reason := pickModel(available, policy)
	logger.Info("Model selected",
		"backend", backend.Name(),
		"model", model,
		"reason", reason,
		"available", len(available))
	return model
}

func pickModel(available []string, policy ModelPolicy) (model, reason string) {
	for _, pref := range policy.Preferences {
		want := trimModelPrefix(pref)
		for _, m := range available {
			if strings.HasPrefix(trimModelPrefix(m), want) {
				return m, "preferred"
			}
		}
	}
	if policy.Hint != "" {
		for _, m := range available {
			if strings.Contains(m, policy.Hint) {
				return m, "hint"
			}
		}
	}
	return available[0], "first available"
}

func trimModelPrefix(name string) string {
	return strings.TrimPrefix(name, "models/")
}

func listWithRetry(ctx context.Context, backend services.TextBackend, retries uint) ([]string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() ([]string, error) {
		models, err := backend.ListModels(ctx)
		if err != nil && !isUnavailable(err) {
			return nil, backoff.Permanent(err)
		}
		return models, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(retries+1),
		backoff.WithMaxElapsedTime(30*time.Second),
	)
}
