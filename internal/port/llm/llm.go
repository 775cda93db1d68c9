// Package llm defines the port for chat-completion style language models.
package llm

import "context"

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest asks the model for one completion.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	// JSONMode requests a JSON object response where the provider supports it.
	JSONMode bool `json:"-"`
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	Content   string `json:"content"`
	Model     string `json:"model"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}

// Completer produces chat completions.
type Completer interface {
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
