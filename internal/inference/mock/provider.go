package mock

import (
	"context"

	"github.com/funddocs/funds-tracker/internal/inference"
)

// Provider satisfies inference.Generator for testing.
type Provider struct {
	Name_        string
	GenerateFunc func(ctx context.Context, systemPrompt string, messages []inference.Message, cfg inference.SamplingConfig) (string, error)

	// Calls counts Generate invocations, for asserting idempotent fast
	// paths never reach the model.
	Calls int
}

func (m *Provider) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *Provider) Generate(ctx context.Context, systemPrompt string, messages []inference.Message, cfg inference.SamplingConfig) (string, error) {
	m.Calls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, systemPrompt, messages, cfg)
	}
	return "{}", nil
}

// NewProvider returns a Provider that always responds with output.
func NewProvider(output string) *Provider {
	return &Provider{
		GenerateFunc: func(context.Context, string, []inference.Message, inference.SamplingConfig) (string, error) {
			return output, nil
		},
	}
}

// NewFailingProvider returns a Provider that always returns err.
func NewFailingProvider(err error) *Provider {
	return &Provider{
		Name_: "mock-failing",
		GenerateFunc: func(context.Context, string, []inference.Message, inference.SamplingConfig) (string, error) {
			return "", err
		},
	}
}

// Compile-time check that Provider implements Generator.
var _ inference.Generator = (*Provider)(nil)
