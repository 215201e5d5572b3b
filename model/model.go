package model

import (
	"context"
	"fmt"
)

// Request is the normalized input of one completion call. Workflow code
// builds the prompt; how it gets answered is a provider concern.
type Request struct {
	// System carries provider-level instructions, empty for none.
	System string `json:"system,omitempty"`
	// Prompt is the user-facing input text.
	Prompt string `json:"prompt"`
	// Temperature overrides the provider default when non-nil.
	Temperature *float64 `json:"temperature,omitempty"`
	// MaxTokens overrides the provider default when positive.
	MaxTokens int64 `json:"max_tokens,omitempty"`
}

// Completion is the outcome of one completion call.
type Completion struct {
	Text     string `json:"text"`
	Model    string `json:"model"`
	Provider string `json:"provider"` // "anthropic", "openai", "mock", etc.
}

// Provider turns a prompt into text. Implementations wrap a vendor API;
// agents and answer interpreters are built on top of this contract and
// never see vendor types.
type Provider interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// MockProvider is a lightweight in-memory Provider useful for tests &
// examples.
type MockProvider struct {
	name      string
	responses map[string]string
}

// NewMockProvider constructs a MockProvider.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:      name,
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockProvider) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (Completion, error) {
	if err := ctx.Err(); err != nil {
		return Completion{}, err
	}
	text := m.responses[req.Prompt]
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	return Completion{Text: text, Model: m.name, Provider: "mock"}, nil
}
