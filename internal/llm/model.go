// Package llm is the boundary to the text-generation service. The pipeline
// only sees the Model interface; GeminiModel is the production implementation.
package llm

import (
	"context"
	"time"
)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string
	Content string
}

// Request is a single model invocation.
type Request struct {
	Model     string
	MaxTokens int
	Messages  []Message
}

// Response is the generated text of a single invocation.
type Response struct {
	Text string
}

// Model provides text generation. Implementations must not retry.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// UserPrompt builds the single-message request every stage sends.
func UserPrompt(model string, maxTokens int, prompt string) Request {
	return Request{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  []Message{{Role: RoleUser, Content: prompt}},
	}
}

// WithTimeout bounds every Generate call on m by d. A zero or negative d
// returns m unchanged.
func WithTimeout(m Model, d time.Duration) Model {
	if d <= 0 {
		return m
	}
	return &timeoutModel{next: m, timeout: d}
}

type timeoutModel struct {
	next    Model
	timeout time.Duration
}

func (m *timeoutModel) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.next.Generate(ctx, req)
}
