package prompts

import (
	"errors"
	"strings"

	"github.com/jwebster45206/party-engine/pkg/chat"
)

// DefaultHistoryLimit is the number of history entries replayed to the model.
const DefaultHistoryLimit = 3

// Builder assembles the single-turn prompt sent to the game master model.
// The backend keeps no memory between calls, so continuity comes entirely
// from the windowed history rendered here.
type Builder struct {
	systemContext string
	knowledge     string
	history       []chat.ChatMessage
	historyLimit  int
	action        string
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: DefaultHistoryLimit,
	}
}

// WithSystemContext sets the instructions that open the prompt.
func (b *Builder) WithSystemContext(ctx string) *Builder {
	b.systemContext = ctx
	return b
}

// WithKnowledge sets retrieved lore. Empty knowledge adds no section.
func (b *Builder) WithKnowledge(lore string) *Builder {
	b.knowledge = lore
	return b
}

// WithHistory sets the room history. Only the tail is rendered.
func (b *Builder) WithHistory(history []chat.ChatMessage) *Builder {
	b.history = history
	return b
}

// WithHistoryLimit sets the chat history window size.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// WithAction sets the merged player action for this turn.
func (b *Builder) WithAction(action string) *Builder {
	b.action = action
	return b
}

// System returns the system block: context plus the knowledge section.
func (b *Builder) System() string {
	if b.knowledge == "" {
		return b.systemContext
	}
	return b.systemContext + "\n\nKNOWLEDGE:\n" + b.knowledge
}

// Build renders the full prompt.
func (b *Builder) Build() (string, error) {
	if strings.TrimSpace(b.action) == "" {
		return "", errors.New("action is required")
	}

	var sb strings.Builder
	sb.WriteString(b.System())

	sb.WriteString("\n\nHistory:\n")
	for _, msg := range chat.Tail(b.history, b.historyLimit) {
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}

	sb.WriteString("\nACTION:\n")
	sb.WriteString(b.action)
	sb.WriteString("\n\nMASTER:")
	return sb.String(), nil
}
