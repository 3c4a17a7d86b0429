// Package anthropic adapts the Anthropic Messages API to memory.Completer
// (extraction prompts) and engine.ChatModel (character replies).
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements memory.Completer and engine.ChatModel.
type Client struct {
	client *anthropic.Client
	model  string
}

var (
	_ memory.Completer = (*Client)(nil)
	_ engine.ChatModel = (*Client)(nil)
)

// New creates a client from cfg.
func New(cfg Config) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return NewWithClient(&client, cfg.Model)
}

// NewWithClient wraps an existing SDK client.
func NewWithClient(client *anthropic.Client, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: client, model: model}
}

// Complete sends prompt as a single user message and returns the text reply.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}
	return textOf(resp), nil
}

// Chat generates a reply, streaming deltas when req.Stream is set.
func (c *Client) Chat(ctx context.Context, req *engine.ChatRequest) (*engine.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  toMessageParams(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	var (
		resp *anthropic.Message
		err  error
	)
	if req.Stream != nil {
		resp, err = c.stream(ctx, params, req.Stream)
	} else {
		resp, err = c.client.Messages.New(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	return &engine.ChatResponse{
		Text: textOf(resp),
		TokensUsed: engine.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// stream accumulates a streamed message, forwarding text deltas.
func (c *Client) stream(ctx context.Context, params anthropic.MessageNewParams, callback func(string, bool)) (*anthropic.Message, error) {
	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("accumulate stream: %w", err)
		}
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				callback(delta.Text, false)
			}
		case anthropic.MessageStopEvent:
			callback("", true)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return &message, nil
}

// toMessageParams maps chat history onto alternating user/assistant turns.
// Unknown roles are sent as user content.
func toMessageParams(messages []memory.Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params = append(params, anthropic.NewAssistantMessage(block))
		} else {
			params = append(params, anthropic.NewUserMessage(block))
		}
	}
	return params
}

func textOf(resp *anthropic.Message) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
