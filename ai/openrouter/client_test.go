package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/errors"
	ptxtest "github.com/teranos/PTX/internal/testing"
	"github.com/teranos/PTX/internal/util"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	client := NewClient(cfg)
	client.SetHTTPClient(server.Client())
	return client
}

func TestClient_Defaults(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	assert.Equal(t, DefaultModel, client.config.Model)
	assert.Equal(t, 0.2, *client.config.Temperature)
	assert.Equal(t, 1000, *client.config.MaxTokens)
	assert.Equal(t, DefaultBaseURL, client.baseURL)
	assert.Equal(t, "openrouter", client.config.Provider)
	assert.True(t, client.IsConfigured())

	assert.False(t, NewClient(Config{}).IsConfigured())
}

func TestClient_Chat(t *testing.T) {
	var got ChatCompletionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "ptx", r.Header.Get("X-Title"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Model:   got.Model,
			Choices: []Choice{{Message: Message{Role: "assistant", Content: "  hello  "}}},
			Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}, Config{Model: "openai/gpt-4o"})

	resp, err := client.Chat(context.Background(), ChatRequest{
		SystemPrompt: "be brief",
		UserPrompt:   "hi",
		Temperature:  util.Ptr(0.7),
		JSONMode:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, "openai/gpt-4o", got.Model)
	assert.Equal(t, 0.7, got.Temperature)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hi", got.Messages[1].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestClient_OpenAIProviderOmitsTitle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Title"))
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Content: "ok"}}},
		})
	}, Config{Provider: "openai", Model: "gpt-3.5-turbo"})

	resp, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestClient_ErrorHandling(t *testing.T) {
	t.Run("status error is a model error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error": "rate limited"}`, http.StatusTooManyRequests)
		}, Config{})

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Equal(t, errors.KindModelError, errors.KindOf(err))
		assert.Contains(t, err.Error(), "status 429")
	})

	t.Run("no choices", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}, Config{})

		_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		assert.ErrorContains(t, err, "no response choices")
	})

	t.Run("missing API key", func(t *testing.T) {
		_, err := NewClient(Config{Provider: "openai"}).Chat(context.Background(), ChatRequest{UserPrompt: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "openai API key not configured")
		assert.Contains(t, errors.FlattenHints(err), "OPENAI_API_KEY")
	})
}

func TestClient_SingleAttempt(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}, Config{})

	_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ContentIsVerbatim(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Content: "  hello\n\n"}}},
		})
	}, Config{})

	resp, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "  hello\n\n", resp.Content)
}

func TestClient_TracksUsage(t *testing.T) {
	conn := ptxtest.CreateTestDB(t)
	tr := tracker.NewUsageTracker(conn)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatCompletionResponse{
			Choices: []Choice{{Message: Message{Content: "ok"}}},
			Usage:   Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
		})
	}, Config{Model: "openai/gpt-4o-mini", Tracker: tr, OperationType: "run"})

	_, err := client.Chat(context.Background(), ChatRequest{UserPrompt: "x"})
	require.NoError(t, err)

	stats, err := tr.GetUsageStats(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 1500, stats.TotalTokens)
	assert.InDelta(t, 0.00045, stats.TotalCost, 1e-9)
}
