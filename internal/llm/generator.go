// Package llm wraps the external text generator behind a small
// interface. The reference client speaks the OpenAI chat-completions
// protocol, which OpenRouter and most local servers expose.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable marks generator timeouts and protocol failures. The
// summarizer logs and leaves its file untouched; the façade surfaces
// the error.
var ErrUnavailable = errors.New("generator unavailable")

// Role values for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for one generation.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Options tunes a single generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Stream asks the provider to stream; the full concatenated text
	// is still returned.
	Stream bool
}

// Generator produces text from an ordered message list.
type Generator interface {
	Generate(ctx context.Context, messages []Message, opts Options) (string, Usage, error)

	// Model returns the configured model identifier.
	Model() string
}
