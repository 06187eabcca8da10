// Package llm provides OpenAI-compatible LLM client functionality.
package llm

import (
	"context"
)

// LLMClient defines the interface for LLM completion operations.
// Use this interface for dependency injection to enable mocking in tests.
type LLMClient interface {
	// GenerateJSON requests a completion in JSON-object response mode.
	// The raw message content is returned; callers parse it.
	GenerateJSON(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GenerateText requests a completion in plain-text response mode.
	GenerateText(ctx context.Context, prompt string, systemMessage string, temperature float64) (string, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements LLMClient at compile time.
var _ LLMClient = (*Client)(nil)
