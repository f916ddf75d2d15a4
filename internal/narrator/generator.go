package narrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jwebster45206/party-engine/internal/services"
	"github.com/jwebster45206/party-engine/pkg/chat"
	"github.com/jwebster45206/party-engine/pkg/lore"
	"github.com/jwebster45206/party-engine/pkg/prompts"
)

// BusyMessage is returned when the backend reports rate limiting.
const BusyMessage = "The master is busy with too many actions right now. Try again in about 30 seconds."

// ScriptedNarrative keeps the game moving when a local model server is down.
const ScriptedNarrative = `The torches gutter and the master's voice falls silent for a moment. The dungeon waits, patient and cold.
A draft carries the smell of wet stone from somewhere deeper below.

1. Press on through the nearest passage.
2. Search the room by torchlight.
3. Rest and tend to your wounds.`

// apiErrorPrefix starts the message returned for unclassified failures.
const apiErrorPrefix = "The master hesitated (API error): "

// maxDiagnostic caps the error text shown to players.
const maxDiagnostic = 100

// Options configure a Generator.
type Options struct {
	Timeout      time.Duration
	HistoryLimit int
	Completion   services.CompletionOptions
}

// DefaultOptions mirror the configuration defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      60 * time.Second,
		HistoryLimit: prompts.DefaultHistoryLimit,
		Completion: services.CompletionOptions{
			Temperature:   0.7,
			ContextWindow: 2048,
			RepeatPenalty: 1.1,
		},
	}
}

// Generator turns a turn's context into game master narration. It holds
// no per-room state; everything arrives as arguments.
type Generator struct {
	backend services.TextBackend
	model   string
	lore    *lore.Store
	opts    Options
	logger  *slog.Logger
}

// NewGenerator binds a backend to the model chosen by SelectModel.
func NewGenerator(backend services.TextBackend, model string, store *lore.Store, opts Options, logger *slog.Logger) *Generator {
	if store == nil {
		store = lore.Empty()
	}
	return &Generator{
		backend: backend,
		model:   model,
		lore:    store,
		opts:    opts,
		logger:  logger.With("backend", backend.Name(), "model", model),
	}
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) Backend() string { return g.backend.Name() }

// Generate always returns displayable text. Backend failures are logged
// and replaced with fallback narration.
func (g *Generator) Generate(ctx context.Context, systemContext string, history []chat.ChatMessage, action string) string {
	builder := prompts.New().
		WithSystemContext(systemContext).
		WithKnowledge(g.lore.Lookup(action)).
		WithHistory(history).
		WithHistoryLimit(g.opts.HistoryLimit).
		WithAction(action)

	prompt, err := builder.Build()
	if err != nil {
		g.logger.Error("Failed to build prompt", "error", err)
		return apiErrorText(err)
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := g.backend.Complete(ctx, g.model, services.CompletionRequest{
		System:  builder.System(),
		Prompt:  prompt,
		Options: g.opts.Completion,
	})
	if err != nil {
		return g.fallback(err, time.Since(start))
	}

	g.logger.Debug("Narrative generated",
		"duration", time.Since(start),
		"prompt_length", len(prompt),
		"response_length", len(text))
	return text
}

func (g *Generator) fallback(err error, elapsed time.Duration) string {
	log := g.logger.With("error", err, "duration", elapsed)
	switch {
	case errors.Is(err, services.ErrRateLimited):
		log.Warn("Backend rate limited")
		return BusyMessage
	case errors.Is(err, services.ErrUnavailable) && g.backend.Local():
		log.Error("Local backend unreachable, using scripted narrative")
		return ScriptedNarrative
	default:
		log.Error("Narrative generation failed")
		return apiErrorText(err)
	}
}

func apiErrorText(err error) string {
	msg := []rune(err.Error())
	if len(msg) > maxDiagnostic {
		msg = msg[:maxDiagnostic]
	}
	return apiErrorPrefix + string(msg) + "..."
}

func isUnavailable(err error) bool {
	return errors.Is(err, services.ErrUnavailable)
}
