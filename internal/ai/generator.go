package ai

import "context"

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GenerateRequest struct {
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Generator produces a completion for a system prompt and message history.
// Stream delivers text fragments as they arrive and returns the assembled
// completion once the provider finishes.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Completion, error)
	Stream(ctx context.Context, req GenerateRequest, onFragment func(string) error) (*Completion, error)
}
