// Package provider selects and builds the chat client for a model provider.
package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/anthropic"
	"github.com/teranos/PTX/ai/openrouter"
	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// Provider names an LLM provider
type Provider string

const (
	// ProviderOpenAI uses the OpenAI chat completions API
	ProviderOpenAI Provider = "openai"
	// ProviderOpenRouter uses OpenRouter.ai
	ProviderOpenRouter Provider = "openrouter"
	// ProviderAnthropic uses the Anthropic Messages API
	ProviderAnthropic Provider = "anthropic"
	// ProviderLocal uses local inference (Ollama, LocalAI)
	ProviderLocal Provider = "local"
)

// AIClient is implemented by every provider client
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ClientConfig carries per-call settings and tracking context
type ClientConfig struct {
	Model       string
	Temperature *float64
	MaxTokens   *int

	Tracker *tracker.UsageTracker
	Logger  *zap.SugaredLogger

	OperationType string
	EntityType    string
	EntityID      string
}

// ParseProvider converts a string to a Provider. Empty means the configured default.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return ProviderOpenAI, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "":
		return "", nil
	}
	return "", errors.NewInvalidInputf("unknown provider: %s (valid: openai, openrouter, anthropic, local)", s)
}

// NewAIClient builds a client for provider. An empty provider falls back to
// llm.provider from configuration.
func NewAIClient(cfg *am.Config, provider Provider, clientCfg ClientConfig) (AIClient, error) {
	if provider == "" {
		p, err := ParseProvider(cfg.LLM.Provider)
		if err != nil {
			return nil, err
		}
		provider = p
	}
	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	switch provider {
	case ProviderOpenAI, ProviderOpenRouter:
		pc := cfg.OpenAI
		if provider == ProviderOpenRouter {
			pc = cfg.OpenRouter
		}
		return openrouter.NewClient(openrouter.Config{
			Provider:      string(provider),
			APIKey:        pc.APIKey,
			BaseURL:       pc.BaseURL,
			Model:         clientCfg.Model,
			Temperature:   clientCfg.Temperature,
			MaxTokens:     clientCfg.MaxTokens,
			Timeout:       timeout,
			Logger:        clientCfg.Logger,
			Tracker:       clientCfg.Tracker,
			OperationType: clientCfg.OperationType,
			EntityType:    clientCfg.EntityType,
			EntityID:      clientCfg.EntityID,
		}), nil

	case ProviderAnthropic:
		acfg := anthropic.Config{
			APIKey:        cfg.Anthropic.APIKey,
			BaseURL:       cfg.Anthropic.BaseURL,
			Model:         clientCfg.Model,
			Timeout:       timeout,
			Logger:        clientCfg.Logger,
			Tracker:       clientCfg.Tracker,
			OperationType: clientCfg.OperationType,
			EntityType:    clientCfg.EntityType,
			EntityID:      clientCfg.EntityID,
		}
		if clientCfg.Temperature != nil {
			acfg.Temperature = *clientCfg.Temperature
		}
		if clientCfg.MaxTokens != nil {
			acfg.MaxTokens = *clientCfg.MaxTokens
		}
		return anthropic.NewClient(acfg), nil

	case ProviderLocal:
		if !cfg.LocalInference.Enabled {
			return nil, errors.WithHint(errors.NewInvalidInputf("local inference is disabled"),
				"set local_inference.enabled = true in am.toml")
		}
		return NewLocalProvider(cfg.LocalInference, clientCfg), nil
	}
	return nil, errors.NewInvalidInputf("unknown provider: %s", provider)
}

// GetAvailableProviders lists providers that have credentials or are enabled
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider
	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, ProviderOpenAI)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, ProviderAnthropic)
	}
	if cfg.LocalInference.Enabled {
		providers = append(providers, ProviderLocal)
	}
	return providers
}
