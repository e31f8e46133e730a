// Package model is the language model seen by the run pipeline: free-text
// completion and schema-constrained prediction over any provider client.
package model

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/teranos/PTX/ai/openrouter"
	"github.com/teranos/PTX/ai/provider"
	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/pulse/budget"
)

// Model completes prompts
type Model interface {
	// Complete returns the model's free-text reply to prompt
	Complete(ctx context.Context, prompt string) (string, error)
	// StructuredPredict returns a value conforming to schema
	StructuredPredict(ctx context.Context, schema *openapi3.Schema, prompt string) (any, error)
}

// Config selects the provider and sampling parameters for a run. Unset
// fields take the llm.* defaults from configuration.
type Config struct {
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
}

// Merge fills unset fields of c from defaults
func (c Config) Merge(defaults Config) Config {
	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.Model == "" {
		c.Model = defaults.Model
	}
	if c.Temperature == nil {
		c.Temperature = defaults.Temperature
	}
	if c.MaxTokens == nil {
		c.MaxTokens = defaults.MaxTokens
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = defaults.SystemPrompt
	}
	return c
}

// Tracking labels usage records for a model handle
type Tracking struct {
	Operation  string
	EntityType string
	EntityID   string
}

// Factory builds a model handle per request
type Factory interface {
	New(cfg Config, tracking Tracking) (Model, error)
}

// ProviderFactory builds ChatModels over the configured providers
type ProviderFactory struct {
	mu      sync.RWMutex
	cfg     *am.Config
	tracker *tracker.UsageTracker
	limiter *budget.Limiter
}

// NewFactory creates a factory. tr may be nil to skip usage tracking. All
// models from one factory share the llm.max_calls_per_minute allowance.
func NewFactory(cfg *am.Config, tr *tracker.UsageTracker) *ProviderFactory {
	return &ProviderFactory{
		cfg:     cfg,
		tracker: tr,
		limiter: budget.NewLimiter(cfg.LLM.MaxCallsPerMin),
	}
}

// Reload swaps in a freshly loaded configuration. Models already handed out
// keep their model settings but follow the new call limit.
func (f *ProviderFactory) Reload(cfg *am.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.limiter.SetLimit(cfg.LLM.MaxCallsPerMin)
}

func (f *ProviderFactory) config() *am.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.cfg
}

// Defaults returns the llm.* configuration as a Config
func (f *ProviderFactory) Defaults() Config {
	cfg := f.config()
	d := Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
	}
	temp := cfg.LLM.Temperature
	d.Temperature = &temp
	if cfg.LLM.MaxTokens > 0 {
		maxTokens := cfg.LLM.MaxTokens
		d.MaxTokens = &maxTokens
	}
	return d
}

// New builds a model for cfg merged over the configured defaults
func (f *ProviderFactory) New(cfg Config, tracking Tracking) (Model, error) {
	cfg = cfg.Merge(f.Defaults())

	p, err := provider.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	client, err := provider.NewAIClient(f.config(), p, provider.ClientConfig{
		Model:         cfg.Model,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
		Tracker:       f.tracker,
		Logger:        logger.ComponentLogger("model"),
		OperationType: tracking.Operation,
		EntityType:    tracking.EntityType,
		EntityID:      tracking.EntityID,
	})
	if err != nil {
		return nil, err
	}
	m := NewChatModel(client, cfg)
	m.limiter = f.limiter
	return m, nil
}

// ChatModel adapts a provider client to Model
type ChatModel struct {
	client  provider.AIClient
	cfg     Config
	limiter *budget.Limiter // nil = unpaced
}

// NewChatModel wraps client
func NewChatModel(client provider.AIClient, cfg Config) *ChatModel {
	return &ChatModel{client: client, cfg: cfg}
}

// pace blocks until the shared call allowance has room
func (m *ChatModel) pace(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return errors.Mark(err, errors.ErrModel)
	}
	return nil
}

// Complete sends prompt as the user message
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	if err := m.pace(ctx); err != nil {
		return "", err
	}
	resp, err := m.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: m.cfg.SystemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

const structuredInstruction = "\n\nRespond only with a JSON value that conforms to this JSON schema. " +
	"Do not add commentary.\n\nSchema:\n"

// StructuredPredict asks for JSON conforming to schema, extracts it from the
// reply and validates it.
func (m *ChatModel) StructuredPredict(ctx context.Context, schema *openapi3.Schema, prompt string) (any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode schema")
	}

	if err := m.pace(ctx); err != nil {
		return nil, err
	}
	resp, err := m.client.Chat(ctx, openrouter.ChatRequest{
		SystemPrompt: m.cfg.SystemPrompt,
		UserPrompt:   prompt + structuredInstruction + string(schemaJSON),
		JSONMode:     schema.Type.Is(openapi3.TypeObject),
	})
	if err != nil {
		return nil, err
	}
	return DecodeConforming(schema, resp.Content)
}

// DecodeConforming extracts a JSON value from a model reply and checks it
// against schema.
func DecodeConforming(schema *openapi3.Schema, reply string) (any, error) {
	text := ExtractJSON(reply)

	// kin-openapi validates the plain float64 decoding
	var plain any
	if err := json.Unmarshal([]byte(text), &plain); err != nil {
		return nil, errors.WithDetail(errors.Wrap(err, "model reply is not valid JSON"), "Reply: "+truncate(reply, 200))
	}
	if err := schema.VisitJSON(plain); err != nil {
		return nil, errors.Wrap(err, "model reply does not match the schema")
	}
	return util.DecodeJSON([]byte(text))
}

// ExtractJSON finds the JSON payload in a model reply: a ```json fenced
// block, else the outermost {...}, else the outermost [...], else the
// trimmed reply.
func ExtractJSON(reply string) string {
	s := strings.TrimSpace(reply)

	if start := strings.Index(s, "```"); start >= 0 {
		rest := s[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			lang := strings.TrimSpace(rest[:nl])
			if lang == "" || strings.EqualFold(lang, "json") {
				body := rest[nl+1:]
				if end := strings.Index(body, "```"); end >= 0 {
					return strings.TrimSpace(body[:end])
				}
			}
		}
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		open := strings.IndexByte(s, pair[0])
		close := strings.LastIndexByte(s, pair[1])
		if open >= 0 && close > open {
			return s[open : close+1]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
