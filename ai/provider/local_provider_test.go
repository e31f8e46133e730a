package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/ai/openrouter"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
)

func TestLocalProvider_Chat(t *testing.T) {
	var got ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model": "llama3", "choices": [{"message": {"role": "assistant", "content": " {\"ok\": true} "}}],
			"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}}`))
	}))
	defer server.Close()

	lp := NewLocalProvider(am.LocalInferenceConfig{Enabled: true, BaseURL: server.URL + "/", ContextSize: util.Ptr(8192)},
		ClientConfig{Model: "llama3", Temperature: util.Ptr(0.1)})

	resp, err := lp.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "hi", JSONMode: true})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, resp.Content)
	assert.Equal(t, 7, resp.Usage.TotalTokens)

	assert.Equal(t, "llama3", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 0.1, got.Options.Temperature)
	assert.Equal(t, 8192, got.Options.NumCtx)
	assert.Len(t, got.Messages, 1)
}

func TestLocalProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	lp := NewLocalProvider(am.LocalInferenceConfig{Enabled: true, BaseURL: server.URL}, ClientConfig{Model: "missing"})
	_, err := lp.Chat(context.Background(), openrouter.ChatRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, errors.KindModelError, errors.KindOf(err))
	assert.Contains(t, err.Error(), "model not found")
}
