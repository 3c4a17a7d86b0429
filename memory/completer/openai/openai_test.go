package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

func TestClient_CompleteAndChat(t *testing.T) {
	var lastRequest map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Congrats!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 2, "total_tokens": 9}
		}`))
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Model: "gpt-test"})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "hello", 50)
	require.NoError(t, err)
	assert.Equal(t, "Congrats!", out)
	assert.Equal(t, "gpt-test", lastRequest["model"])

	resp, err := c.Chat(context.Background(), &engine.ChatRequest{
		System:    "You are Mika.",
		Messages:  []memory.Message{{Role: "user", Content: "I got promoted"}},
		MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, "Congrats!", resp.Text)
	assert.Equal(t, 7, resp.TokensUsed.InputTokens)

	messages, ok := lastRequest["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Config{APIKey: "test"})
	assert.Error(t, err)
}
