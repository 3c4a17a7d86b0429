package engine

import (
	"context"

	"github.com/becomeliminal/nim-memory/memory"
)

// ChatModel produces the character's reply for one turn.
type ChatModel interface {
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a provider-neutral chat completion request.
type ChatRequest struct {
	Model     string
	System    string
	Messages  []memory.Message
	MaxTokens int

	// Stream, when set, receives text deltas as they arrive.
	Stream func(chunk string, done bool)
}

// ChatResponse is the assistant's reply.
type ChatResponse struct {
	Text       string
	TokensUsed TokenUsage
}

// TokenUsage tracks model token consumption.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}
