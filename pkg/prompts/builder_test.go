package prompts

import (
	"strings"
	"testing"

	"github.com/jwebster45206/party-engine/pkg/chat"
)

func TestNew(t *testing.T) {
	builder := New()
	if builder == nil {
		t.Fatal("Expected builder to be created, got nil")
	}
	if builder.historyLimit != DefaultHistoryLimit {
		t.Errorf("Expected default history limit of %d, got %d", DefaultHistoryLimit, builder.historyLimit)
	}
}

func TestBuilder_Build_RequiresAction(t *testing.T) {
	_, err := New().WithSystemContext("ctx").Build()
	if err == nil {
		t.Fatal("Expected error when action is missing")
	}
}

func TestBuilder_Build_Layout(t *testing.T) {
	history := []chat.ChatMessage{
		{Role: chat.ChatRoleAgent, Content: "one"},
		{Role: chat.ChatRoleUser, Content: "two"},
		{Role: chat.ChatRoleAgent, Content: "three"},
		{Role: chat.ChatRoleUser, Content: "four"},
	}

	prompt, err := New().
		WithSystemContext("RPG. HP: 20.").
		WithKnowledge("[LORE MONSTERS: goblin]: small and mean").
		WithHistory(history).
		WithAction("Ana: I attack the goblin").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "RPG. HP: 20.\n\nKNOWLEDGE:\n[LORE MONSTERS: goblin]: small and mean" +
		"\n\nHistory:\ntwo\nthree\nfour\n" +
		"\nACTION:\nAna: I attack the goblin\n\nMASTER:"
	if prompt != expected {
		t.Errorf("unexpected prompt:\n%q\nwant:\n%q", prompt, expected)
	}
}

func TestBuilder_Build_NoKnowledgeNoHistory(t *testing.T) {
	prompt, err := New().
		WithSystemContext("ctx").
		WithAction(StartAction).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt, "KNOWLEDGE") {
		t.Error("Expected no knowledge section")
	}
	if !strings.HasPrefix(prompt, "ctx\n\nHistory:\n\nACTION:\nSTART ADVENTURE") {
		t.Errorf("unexpected prompt: %q", prompt)
	}
}

func TestBuilder_HistoryLimit(t *testing.T) {
	history := []chat.ChatMessage{
		{Content: "a"}, {Content: "b"}, {Content: "c"},
	}

	tests := []struct {
		name  string
		limit int
		want  string
	}{
		{"zero renders nothing", 0, "History:\n\nACTION"},
		{"one renders newest", 1, "History:\nc\n\nACTION"},
		{"larger than history", 10, "History:\na\nb\nc\n\nACTION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := New().WithHistory(history).WithHistoryLimit(tt.limit).WithAction("x").Build()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(prompt, tt.want) {
				t.Errorf("expected %q in prompt %q", tt.want, prompt)
			}
		})
	}
}

func TestGameMaster(t *testing.T) {
	got := GameMaster(12, 20, 3, nil)
	if !strings.Contains(got, "HP 12/20, dungeon floor 3") {
		t.Errorf("missing counters: %q", got)
	}
	if !strings.Contains(got, "inventory: nothing") {
		t.Errorf("missing empty inventory marker: %q", got)
	}
	if !strings.Contains(GameMaster(1, 1, 1, []string{"torch", "rope"}), "torch, rope") {
		t.Error("expected inventory list")
	}
}
