// Package engine runs one companion chat turn: memory retrieval, the reply
// call, and hand-off of the finished turn to background extraction.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultSystemPrompt is used when Input.SystemPrompt is empty.
const DefaultSystemPrompt = `You are a warm, attentive companion. Stay in character, keep replies ` +
	`conversational, and bring up what you remember about the user only when it fits naturally.`

// Engine is the turn runner.
type Engine struct {
	model      ChatModel
	memory     *memory.Manager    // Optional: retrieval before the reply
	dispatcher *memory.Dispatcher // Optional: extraction after the reply
}

// Option configures the engine.
type Option func(*Engine)

// WithMemory configures the engine with a memory manager.
func WithMemory(m *memory.Manager) Option {
	return func(e *Engine) {
		e.memory = m
	}
}

// WithDispatcher hands finished turns to background extraction.
func WithDispatcher(d *memory.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// NewEngine creates a new engine around the reply model.
func NewEngine(model ChatModel, opts ...Option) *Engine {
	e := &Engine{model: model}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Input represents one user turn.
type Input struct {
	UserID      string
	CharacterID string

	// UserMessage is the user's message to answer.
	UserMessage string

	// History contains previous messages in the conversation, oldest first.
	History []memory.Message

	// SystemPrompt is the character prompt. Memory is appended to it.
	SystemPrompt string

	// Model overrides the ChatModel's default model.
	Model string

	// MaxTokens is the maximum response tokens (default 1024).
	MaxTokens int

	// StreamCallback is an optional callback for streaming responses.
	StreamCallback func(chunk string, done bool)
}

// Output represents the result of a turn.
type Output struct {
	// Type indicates the kind of output.
	Type OutputType

	// Text is the character's reply.
	Text string

	// MemoryContext is the block appended to the system prompt, if any.
	MemoryContext string

	// ExtractionQueued reports whether the turn was accepted for extraction.
	ExtractionQueued bool

	// TokensUsed tracks model token consumption for this turn.
	TokensUsed TokenUsage

	// Error is set when Type is OutputError.
	Error error
}

// OutputType indicates the kind of output from a turn.
type OutputType int

const (
	// OutputComplete indicates the reply was generated.
	OutputComplete OutputType = iota

	// OutputError indicates the reply call failed.
	OutputError
)

// Run answers one user message. Memory failures never affect the reply.
func (e *Engine) Run(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || strings.TrimSpace(input.UserMessage) == "" {
		return nil, errors.New("user message is required")
	}

	// === PHASE 0: RETRIEVE MEMORIES ===
	var enrichment string
	if e.memory != nil {
		var err error
		enrichment, err = e.memory.BuildContext(ctx, input.UserID, input.CharacterID, input.UserMessage)
		if err != nil {
			slog.Warn("memory retrieval failed", "component", "engine", "error", err)
			enrichment = "" // Non-fatal, continue without memories
		}
	}

	// === PHASE 1: ENRICH SYSTEM PROMPT ===
	systemPrompt := input.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if enrichment != "" {
		systemPrompt += "\n\n" + enrichment
	}

	maxTokens := input.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	// === PHASE 2: REPLY ===
	messages := make([]memory.Message, 0, len(input.History)+1)
	messages = append(messages, input.History...)
	messages = append(messages, memory.Message{Role: "user", Content: input.UserMessage})

	resp, err := e.model.Chat(ctx, &ChatRequest{
		Model:     input.Model,
		System:    systemPrompt,
		Messages:  messages,
		MaxTokens: maxTokens,
		Stream:    input.StreamCallback,
	})
	if err != nil {
		return &Output{
			Type:          OutputError,
			MemoryContext: enrichment,
			Error:         fmt.Errorf("reply failed: %w", err),
		}, err
	}

	out := &Output{
		Type:          OutputComplete,
		Text:          resp.Text,
		MemoryContext: enrichment,
		TokensUsed:    resp.TokensUsed,
	}

	// === PHASE 3: EXTRACT (background) ===
	if e.dispatcher != nil && resp.Text != "" {
		out.ExtractionQueued = e.dispatcher.Submit(ctx, memory.Turn{
			UserID:         input.UserID,
			CharacterID:    input.CharacterID,
			UserMessage:    input.UserMessage,
			AssistantReply: resp.Text,
			History:        input.History,
		})
	}

	slog.Debug("turn complete",
		"component", "engine",
		"user_id", input.UserID,
		"character_id", input.CharacterID,
		"memory_chars", len(enrichment),
		"extraction_queued", out.ExtractionQueued,
	)
	return out, nil
}
