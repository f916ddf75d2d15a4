package chat

import "testing"

func TestTurnGroup(t *testing.T) {
	msg := TurnGroup([]string{PendingEntry("ana", "open the door"), PendingEntry("bo", "hold the torch")})
	if msg.Role != ChatRoleUser {
		t.Errorf("expected role %q, got %q", ChatRoleUser, msg.Role)
	}
	want := "TURN GROUP:\nana: open the door\nbo: hold the torch"
	if msg.Content != want {
		t.Errorf("expected %q, got %q", want, msg.Content)
	}
}

func TestTail(t *testing.T) {
	history := []ChatMessage{{Content: "1"}, {Content: "2"}, {Content: "3"}, {Content: "4"}}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"negative", -1, nil},
		{"zero", 0, nil},
		{"window", 3, []string{"2", "3", "4"}},
		{"whole history", 9, []string{"1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tail(history, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d messages, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].Content != tt.want[i] {
					t.Errorf("index %d: expected %q, got %q", i, tt.want[i], got[i].Content)
				}
			}
		})
	}
}
