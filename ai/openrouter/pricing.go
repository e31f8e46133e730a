package openrouter

import "strings"

// ModelPricing is USD per million tokens
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// modelPricing uses OpenRouter model ids. Bare OpenAI names ("gpt-4o") are
// looked up under the openai/ prefix.
var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o":        {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":   {PromptPrice: 0.15, CompletionPrice: 0.60},
	"openai/gpt-4-turbo":   {PromptPrice: 10.00, CompletionPrice: 30.00},
	"openai/gpt-3.5-turbo": {PromptPrice: 0.50, CompletionPrice: 1.50},
	"openai/gpt-4.1-mini":  {PromptPrice: 0.40, CompletionPrice: 1.60},
	"openai/gpt-4.1-nano":  {PromptPrice: 0.10, CompletionPrice: 0.40},

	"anthropic/claude-3.5-sonnet": {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3-opus":     {PromptPrice: 15.00, CompletionPrice: 75.00},
	"anthropic/claude-3-haiku":    {PromptPrice: 0.25, CompletionPrice: 1.25},

	"google/gemini-pro-1.5":   {PromptPrice: 1.25, CompletionPrice: 5.00},
	"google/gemini-flash-1.5": {PromptPrice: 0.075, CompletionPrice: 0.30},

	"meta-llama/llama-3.1-70b-instruct": {PromptPrice: 0.52, CompletionPrice: 0.75},
	"meta-llama/llama-3.1-8b-instruct":  {PromptPrice: 0.055, CompletionPrice: 0.055},
}

// DefaultPricingFallback is charged per request when the model is unknown
const DefaultPricingFallback = 0.01

// CalculateCost returns the USD cost of a call
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := GetPricing(model)
	if !found {
		return DefaultPricingFallback
	}

	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice
	return promptCost + completionCost
}

// GetPricing returns pricing for a model, if known
func GetPricing(model string) (ModelPricing, bool) {
	if pricing, ok := modelPricing[model]; ok {
		return pricing, true
	}
	if !strings.Contains(model, "/") {
		pricing, ok := modelPricing["openai/"+model]
		return pricing, ok
	}
	return ModelPricing{}, false
}
