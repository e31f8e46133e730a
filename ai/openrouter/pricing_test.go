package openrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost_KnownModels(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		expectedCost     float64
	}{
		// ($0.15 * 1000/1M) + ($0.60 * 500/1M)
		{"gpt-4o-mini via openrouter", "openai/gpt-4o-mini", 1000, 500, 0.00045},
		// ($0.50 * 2000/1M) + ($1.50 * 1000/1M)
		{"bare openai name", "gpt-3.5-turbo", 2000, 1000, 0.0025},
		// ($3.00 * 10000/1M) + ($15.00 * 5000/1M)
		{"claude sonnet", "anthropic/claude-3.5-sonnet", 10000, 5000, 0.105},
		{"zero tokens", "openai/gpt-4o", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expectedCost, CalculateCost(tt.model, tt.promptTokens, tt.completionTokens), 1e-9)
		})
	}
}

func TestCalculateCost_UnknownModelUsesFallback(t *testing.T) {
	assert.Equal(t, DefaultPricingFallback, CalculateCost("unknown/model", 1000, 1000))
	assert.Equal(t, DefaultPricingFallback, CalculateCost("mystery-model", 1000, 1000))
}

func TestGetPricing(t *testing.T) {
	p, ok := GetPricing("gpt-4o")
	assert.True(t, ok)
	assert.Equal(t, 2.50, p.PromptPrice)

	_, ok = GetPricing("vendor/unknown")
	assert.False(t, ok)
}
