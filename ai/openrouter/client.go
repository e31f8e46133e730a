// Package openrouter is a client for OpenAI-compatible chat completion APIs.
// It serves both OpenRouter and OpenAI itself; the two differ only in base
// URL, model naming and a few optional headers.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/httpclient"
)

const (
	// DefaultModel is the fallback model when none is specified
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API endpoint
	DefaultBaseURL = "https://openrouter.ai/api/v1"
)

// Client is an OpenAI-compatible chat completions client
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds client configuration
type Config struct {
	Provider    string // recorded in usage rows: openai or openrouter
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64 // nil = 0.2
	MaxTokens   *int     // nil = 1000
	Timeout     time.Duration

	Logger  *zap.SugaredLogger    // nil = nop logger
	Tracker *tracker.UsageTracker // nil = usage not recorded

	OperationType string // tracking context, e.g. "run" or "batch"
	EntityType    string
	EntityID      string
}

// NewClient creates a client, applying defaults for unset fields
func NewClient(config Config) *Client {
	if config.Provider == "" {
		config.Provider = "openrouter"
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 1000
		config.MaxTokens = &defaultTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpclient.NewSaferClient(config.Timeout),
		config:     config,
		logger:     logger,
	}
}

// ChatCompletionRequest is the wire request for /chat/completions
type ChatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks the model for a JSON object reply
type ResponseFormat struct {
	Type string `json:"type"`
}

// ChatRequest is a provider-independent request. Anthropic and local clients
// accept the same type.
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
	JSONMode     bool     // Request a JSON object reply where the API supports it
}

// ChatResponse is the model reply
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message is a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the wire response from /chat/completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends a single chat completion request
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	if c.config.Provider == "openrouter" {
		// Shown on the OpenRouter dashboard
		httpReq.Header.Set("X-Title", "ptx")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Chat sends one request and records usage. Failed calls are not retried.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHintf(errors.Mark(errors.Newf("%s API key not configured", c.config.Provider), errors.ErrModel),
			"set %s_API_KEY or %s.api_key in am.toml", strings.ToUpper(c.config.Provider), c.config.Provider)
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	c.logger.Debugw("Chat request",
		"provider", c.config.Provider,
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_length", len(req.UserPrompt),
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	wireReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if req.JSONMode {
		wireReq.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}

	requestTime := time.Now()

	resp, err := c.CreateChatCompletion(ctx, wireReq)
	if err != nil {
		c.logger.Warnw("Chat API error", "error", err, "model", model)
	}
	if err != nil {
		c.track(ctx, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Mark(errors.Wrapf(err, "%s API error", c.config.Provider), errors.ErrModel)
	}

	if len(resp.Choices) == 0 {
		err := errors.Newf("no response choices from %s", c.config.Provider)
		c.track(ctx, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Mark(err, errors.ErrModel)
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debugw("Chat response",
		"content_length", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	c.track(ctx, requestTime, model, temperature, maxTokens, &resp.Usage, nil)

	return &ChatResponse{
		Content: content,
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

// track records the call; a failed write is logged and never fails the call
func (c *Client) track(ctx context.Context, requestTime time.Time, model string, temperature float64, maxTokens int, usage *Usage, callErr error) {
	if c.config.Tracker == nil {
		return
	}

	responseTime := time.Now()
	record := &tracker.ModelUsage{
		OperationType:     c.config.OperationType,
		EntityType:        c.config.EntityType,
		EntityID:          c.config.EntityID,
		ModelName:         model,
		ModelProvider:     c.config.Provider,
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if usage != nil {
		tokens := usage.TotalTokens
		cost := CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}

	// The request context may already be cancelled; the record should still land.
	if err := c.config.Tracker.TrackUsage(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}

// IsConfigured reports whether the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient overrides the HTTP client. Tests only; production code keeps
// the SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
