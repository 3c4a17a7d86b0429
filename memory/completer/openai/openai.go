// Package openai adapts OpenAI-compatible chat completion APIs to
// memory.Completer and engine.ChatModel.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client implements memory.Completer and engine.ChatModel.
type Client struct {
	client *openai.Client
	model  string
}

var (
	_ memory.Completer = (*Client)(nil)
	_ engine.ChatModel = (*Client)(nil)
)

// New creates a client from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("chat model is required")
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &Client{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Complete sends prompt as a single user message.
func (c *Client) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Chat generates a reply, streaming deltas when req.Stream is set.
func (c *Client) Chat(ctx context.Context, req *engine.ChatRequest) (*engine.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	request := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}

	if req.Stream != nil {
		return c.stream(ctx, request, req.Stream)
	}

	resp, err := c.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return &engine.ChatResponse{
		Text: resp.Choices[0].Message.Content,
		TokensUsed: engine.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) stream(ctx context.Context, request openai.ChatCompletionRequest, callback func(string, bool)) (*engine.ChatResponse, error) {
	request.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream failed: %w", err)
	}
	defer stream.Close()

	out := &engine.ChatResponse{}
	var text []byte
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			callback("", true)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat completion stream failed: %w", err)
		}
		if chunk.Usage != nil {
			out.TokensUsed.InputTokens = chunk.Usage.PromptTokens
			out.TokensUsed.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			text = append(text, delta...)
			callback(delta, false)
		}
	}
	out.Text = string(text)
	return out, nil
}
