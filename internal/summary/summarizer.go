// Package summary turns transcript deltas into short summaries via an
// external LLM.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/streamnote/streamnote/internal/llm"
)

const systemPrompt = "You summarize fragments of a live conversation transcript. " +
	"Reply with a concise summary of the main points, decisions, and action items. " +
	"Do not mention that the text is a transcript fragment."

// Summarizer implements session.Summarizer over an llm.Client, retrying
// transient provider failures with a short fixed backoff ladder.
type Summarizer struct {
	client llm.Client
	sleep  func(time.Duration)
}

// New creates a summarizer for the given "provider/name" model string.
func New(model string, keys llm.Keys) (*Summarizer, error) {
	client, err := llm.NewClient(model, keys)
	if err != nil {
		return nil, fmt.Errorf("create summarizer: %w", err)
	}
	return NewWithClient(client), nil
}

// NewWithClient wraps an existing LLM client.
func NewWithClient(client llm.Client) *Summarizer {
	return &Summarizer{client: client, sleep: time.Sleep}
}

// Summarize produces a summary of delta, the newly finalized transcript
// text for one session. An effectively empty delta yields an empty
// summary without calling the provider.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, delta string) (string, error) {
	if strings.TrimSpace(delta) == "" {
		return "", nil
	}

	prompt := llm.Prompt{
		System: systemPrompt,
		User:   "Summarize the following:\n\n" + delta,
	}

	backoff := []time.Duration{time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := s.client.Complete(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize session %s failed after retries: %w", sessionID, lastErr)
}
