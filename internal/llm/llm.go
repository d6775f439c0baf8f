// Package llm provides thin chat-completion clients for the providers
// the summarizer can target. Models are addressed as "provider/name",
// e.g. "gemini/gemini-1.5-flash" or "openai/gpt-4o-mini".
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Prompt is one completion request: a system instruction plus user content.
type Prompt struct {
	System string
	User   string
}

// Client completes prompts against one provider.
type Client interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

// Keys holds per-provider API keys; only the selected provider's key
// needs to be set.
type Keys struct {
	OpenAI    string
	Anthropic string
	Gemini    string
}

// ParseModel splits a "provider/name" model string.
func ParseModel(model string) (provider, name string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

// NewClient builds a client for a "provider/name" model string.
func NewClient(model string, keys Keys) (Client, error) {
	provider, name, err := ParseModel(model)
	if err != nil {
		return nil, err
	}

	switch provider {
	case "openai":
		return newOpenAIClient(keys.OpenAI, name), nil
	case "anthropic":
		return newAnthropicClient(keys.Anthropic, name), nil
	case "gemini":
		return newGeminiClient(keys.Gemini, name)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
