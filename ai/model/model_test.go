package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/ai/openrouter"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
	"github.com/teranos/PTX/pulse/budget"
)

func objectSchema(t *testing.T) *openapi3.Schema {
	t.Helper()
	var s openapi3.Schema
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "object",
		"required": ["label"],
		"properties": {
			"label": {"type": "string", "enum": ["pos", "neg"]},
			"score": {"type": "integer"}
		}
	}`), &s))
	return &s
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"fenced json", "Sure!\n```json\n{\"a\": 1}\n```\nDone.", `{"a": 1}`},
		{"fenced no lang", "```\n[1, 2]\n```", `[1, 2]`},
		{"prose around object", `The answer is {"a": {"b": 2}} as requested.`, `{"a": {"b": 2}}`},
		{"array", `Here: [1, 2, 3]`, `[1, 2, 3]`},
		{"scalar", `  42 `, `42`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.reply))
		})
	}
}

func TestDecodeConforming(t *testing.T) {
	schema := objectSchema(t)

	v, err := DecodeConforming(schema, "```json\n{\"label\": \"pos\", \"score\": 3}\n```")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "pos", "score": int64(3)}, v)

	_, err = DecodeConforming(schema, `{"label": "meh"}`)
	assert.ErrorContains(t, err, "does not match the schema")

	_, err = DecodeConforming(schema, `not json at all`)
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestConfigMerge(t *testing.T) {
	defaults := Config{Provider: "openai", Model: "gpt-3.5-turbo", Temperature: util.Ptr(0.7), SystemPrompt: "sys"}

	got := Config{Model: "gpt-4o", MaxTokens: util.Ptr(50)}.Merge(defaults)
	assert.Equal(t, "openai", got.Provider)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 0.7, *got.Temperature)
	assert.Equal(t, 50, *got.MaxTokens)
	assert.Equal(t, "sys", got.SystemPrompt)
}

func TestProviderFactory_Defaults(t *testing.T) {
	f := NewFactory(&am.Config{LLM: am.LLMConfig{Provider: "openai", Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 1024}}, nil)
	d := f.Defaults()
	assert.Equal(t, "openai", d.Provider)
	assert.Equal(t, "gpt-3.5-turbo", d.Model)
	assert.Equal(t, 0.7, *d.Temperature)
	assert.Equal(t, 1024, *d.MaxTokens)

	_, err := f.New(Config{Provider: "nope"}, Tracking{})
	assert.Error(t, err)

	m, err := f.New(Config{}, Tracking{Operation: "run"})
	require.NoError(t, err)
	assert.IsType(t, &ChatModel{}, m)
}

func TestChatModel_StructuredPredict(t *testing.T) {
	var got openrouter.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(openrouter.ChatCompletionResponse{
			Choices: []openrouter.Choice{{Message: openrouter.Message{Content: `{"label": "neg"}`}}},
		})
	}))
	defer server.Close()

	client := openrouter.NewClient(openrouter.Config{Provider: "openai", APIKey: "k", BaseURL: server.URL})
	client.SetHTTPClient(server.Client())
	m := NewChatModel(client, Config{SystemPrompt: "classify"})

	v, err := m.StructuredPredict(context.Background(), objectSchema(t), "Review: awful")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "neg"}, v)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "classify", got.Messages[0].Content)
	assert.True(t, strings.HasPrefix(got.Messages[1].Content, "Review: awful"))
	assert.Contains(t, got.Messages[1].Content, `"enum":["pos","neg"]`)
	require.NotNil(t, got.ResponseFormat)
}

func TestChatModel_PacedByLimiter(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(openrouter.ChatCompletionResponse{
			Choices: []openrouter.Choice{{Message: openrouter.Message{Content: "ok"}}},
		})
	}))
	defer server.Close()

	client := openrouter.NewClient(openrouter.Config{Provider: "openai", APIKey: "k", BaseURL: server.URL})
	client.SetHTTPClient(server.Client())
	m := NewChatModel(client, Config{})
	m.limiter = budget.NewLimiter(1)

	reply, err := m.Complete(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	// The second call would wait a minute for a slot
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Complete(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, errors.KindModelError, errors.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestProviderFactory_ReloadChangesCallLimit(t *testing.T) {
	cfg := &am.Config{LLM: am.LLMConfig{Provider: "openai", MaxCallsPerMin: 1}}
	f := NewFactory(cfg, nil)
	_, remaining := f.limiter.Stats()
	assert.Equal(t, 1, remaining)

	f.Reload(&am.Config{LLM: am.LLMConfig{Provider: "openai", MaxCallsPerMin: 0}})
	_, remaining = f.limiter.Stats()
	assert.Equal(t, -1, remaining)
}

func TestStub(t *testing.T) {
	s := &Stub{}
	out, err := s.Complete(context.Background(), "echo me")
	require.NoError(t, err)
	assert.Equal(t, "echo me", out)

	s.CompleteFunc = func(ctx context.Context, prompt string) (string, error) { return `{"label": "pos"}`, nil }
	v, err := s.StructuredPredict(context.Background(), objectSchema(t), "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"label": "pos"}, v)
	assert.Equal(t, []string{"echo me", "p"}, s.Prompts())
}
