package llm

import (
	"context"
	"fmt"
)

// Provider is the narrow chat-model capability the orchestrator drives. Test
// doubles implement it to simulate rate limits and fatal errors without
// network access.
type Provider interface {
	Name() string
	// Complete produces a completion for the user message given an optional
	// system prompt and prior conversation turns.
	Complete(ctx context.Context, system string, history []ChatMessage, user string) (string, error)
}

// ProviderError is the structured error surface concrete clients normalize
// SDK failures into so outcome classification stays provider-agnostic.
type ProviderError struct {
	Provider string
	Status   int
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm: provider %s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("llm: provider %s: %s", e.Provider, e.Message)
}
