package provider

import (
	"strings"
	"testing"
)

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short message kept verbatim", "How do I reset my password?", "How do I reset my password?"},
		{"empty message", "", ""},
		{
			"long message truncated",
			strings.Repeat("a", 80),
			strings.Repeat("a", 50) + "...",
		},
		{
			"exactly at limit kept verbatim",
			strings.Repeat("b", 50),
			strings.Repeat("b", 50),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FallbackTitle(tt.input); got != tt.want {
				t.Errorf("FallbackTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFallbackTitle_MultibyteSafe(t *testing.T) {
	input := strings.Repeat("日", 60)
	got := FallbackTitle(input)
	want := strings.Repeat("日", 50) + "..."
	if got != want {
		t.Errorf("FallbackTitle() = %q, want %q", got, want)
	}
}

func TestToOpenAIMessages(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "You are a helpful assistant."},
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi there"},
	}

	out := toOpenAIMessages(msgs)
	if len(out) != len(msgs) {
		t.Fatalf("len = %d, want %d", len(out), len(msgs))
	}
	for i, m := range msgs {
		if out[i].Role != m.Role || out[i].Content != m.Content {
			t.Errorf("message %d = {%s %q}, want {%s %q}", i, out[i].Role, out[i].Content, m.Role, m.Content)
		}
	}
}
