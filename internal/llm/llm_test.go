package llm

import (
	"strings"
	"testing"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{name: "valid", input: "gemini/gemini-1.5-flash", wantProvider: "gemini", wantModel: "gemini-1.5-flash"},
		{name: "openai", input: "openai/gpt-4o-mini", wantProvider: "openai", wantModel: "gpt-4o-mini"},
		{name: "missing slash", input: "gpt-4o-mini", wantErr: true},
		{name: "empty provider", input: "/gpt-4o-mini", wantErr: true},
		{name: "empty model", input: "openai/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, name, err := ParseModel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseModel returned error: %v", err)
			}
			if provider != tt.wantProvider || name != tt.wantModel {
				t.Fatalf("expected %s/%s, got %s/%s", tt.wantProvider, tt.wantModel, provider, name)
			}
		})
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	client, err := NewClient("mystery/model-x", Keys{})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if client != nil {
		t.Fatal("expected nil client on error")
	}
	if !strings.Contains(err.Error(), "unknown LLM provider") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewClient_KnownProviders(t *testing.T) {
	for _, model := range []string{"openai/gpt-4o-mini", "anthropic/claude-sonnet-4-20250514"} {
		client, err := NewClient(model, Keys{OpenAI: "k", Anthropic: "k"})
		if err != nil {
			t.Errorf("NewClient(%q) returned error: %v", model, err)
		}
		if client == nil {
			t.Errorf("NewClient(%q) returned nil client", model)
		}
	}
}
