//go:build integration

package openrouter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/internal/util"
)

// Hits the real OpenRouter API.
// Run with: OPENROUTER_API_KEY=... go test -tags=integration ./ai/openrouter
func TestIntegration_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENROUTER_API_KEY not set, skipping integration tests")
	}

	client := NewClient(Config{
		APIKey:      apiKey,
		Model:       "openai/gpt-4o-mini",
		Temperature: util.Ptr(0.0),
		MaxTokens:   util.Ptr(20),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Chat(ctx, ChatRequest{UserPrompt: "Reply with the single word: pong"})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "pong")
	assert.Positive(t, resp.Usage.TotalTokens)
}
