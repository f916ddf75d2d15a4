package chat

import "strings"

const (
	ChatRoleUser   = "user"      // Players, or a merged turn group
	ChatRoleAgent  = "assistant" // Game master narration
	ChatRoleSystem = "system"    // Instructions sent to the model
)

// TurnGroupPrefix marks the history entry holding a turn's merged actions.
const TurnGroupPrefix = "TURN GROUP:\n"

// ChatMessage represents a single entry in a room's history.
// The shape matches Ollama's chat message so entries can be sent as-is.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// TurnGroup builds the user entry recorded for a resolved turn.
func TurnGroup(pending []string) ChatMessage {
	return ChatMessage{
		Role:    ChatRoleUser,
		Content: TurnGroupPrefix + strings.Join(pending, "\n"),
	}
}

// Narration builds an assistant entry.
func Narration(text string) ChatMessage {
	return ChatMessage{Role: ChatRoleAgent, Content: text}
}

// PendingEntry formats a queued player action.
func PendingEntry(username, message string) string {
	return username + ": " + message
}

// Tail returns the last n messages, oldest first. The result shares
// the backing array with history.
func Tail(history []ChatMessage, n int) []ChatMessage {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
