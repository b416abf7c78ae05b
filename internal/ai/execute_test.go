package ai

import (
	"testing"
)

func TestExtractMessageContent(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "  hello world  ", "hello world"},
		{"text parts", []any{map[string]any{"text": "hello "}, map[string]any{"text": "world"}}, "hello world"},
		{"content parts", []any{map[string]any{"content": "hello"}}, "hello"},
		{"nil", nil, ""},
		{"non-map items", []any{"not a map", 42, nil}, ""},
		{"integer", 42, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractMessageContent(tt.in); got != tt.want {
				t.Fatalf("extractMessageContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", `{"key": "value"}`, `{"key": "value"}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`, false},
		{"empty", "   ", "", true},
		{"no object", "no json here", "", true},
		{"reversed braces", "} {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("extractJSONObject() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoinURLPath(t *testing.T) {
	got, err := joinURLPath("https://api.example.com/v1/", "/chat/completions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://api.example.com/v1/chat/completions" {
		t.Fatalf("unexpected url %q", got)
	}
	if _, err := joinURLPath("  ", "/x"); err == nil {
		t.Fatal("expected error for empty base")
	}
}

func TestParseLine(t *testing.T) {
	tests := map[string]int{
		`12`:     12,
		`12.0`:   12,
		`"7"`:    7,
		`"abc"`:  0,
		`null`:   0,
		``:       0,
		`-3`:     -3,
		`1e12`:   2147483647,
	}
	for raw, want := range tests {
		if got := parseLine([]byte(raw)); got != want {
			t.Errorf("parseLine(%q) = %d, want %d", raw, got, want)
		}
	}
}
