// Package inference abstracts the generative text service the extraction
// pipeline calls. Providers live in subpackages; the pipeline only sees the
// Generator interface.
package inference

import (
	"context"
)

// Role values for chat-style messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat-style request.
type Message struct {
	Role    string
	Content string
}

// SamplingConfig is the deterministic sampling setup used by the pipeline:
// temperature 0 with a bounded output size.
type SamplingConfig struct {
	MaxOutputTokens int
	Temperature     float32
	TopP            float32
}

// Generator is the interface to the inference service. Generate returns the
// first text segment of the model response.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []Message, cfg SamplingConfig) (string, error)
	Name() string
}
