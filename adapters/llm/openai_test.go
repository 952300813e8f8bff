package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/falabot/server/domain/repositories"
)

func TestNewOpenAIChat_RequiresKey(t *testing.T) {
	_, err := NewOpenAIChat(OpenAIConfig{Name: "deepseek"}, zaptest.NewLogger(t))
	assert.EqualError(t, err, "deepseek API key is required")
}

func TestOpenAIChat_Complete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Você quis dizer: olá  "}}]
		}`))
	}))
	defer server.Close()

	chat, err := NewOpenAIChat(OpenAIConfig{
		Name:    "deepseek",
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Model:   "deepseek-chat",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	text, err := chat.Complete(context.Background(), []repositories.ChatMessage{
		{Role: repositories.SystemRole, Content: "corrija"},
		{Role: repositories.UserRole, Content: "ola"},
	}, repositories.CompletionOptions{Temperature: 0.3, MaxTokens: 500})
	require.NoError(t, err)

	assert.Equal(t, "Você quis dizer: olá", text)
	assert.Equal(t, "deepseek", chat.Name())
	assert.Equal(t, "deepseek-chat", captured["model"])
	assert.EqualValues(t, 500, captured["max_tokens"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenAIChat_CompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "boom"}}`))
	}))
	defer server.Close()

	chat, err := NewOpenAIChat(OpenAIConfig{APIKey: "sk-test", BaseURL: server.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = chat.Complete(context.Background(), []repositories.ChatMessage{{Role: repositories.UserRole, Content: "oi"}}, repositories.CompletionOptions{})
	assert.Error(t, err)
}
