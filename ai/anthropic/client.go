// Package anthropic is a client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/openrouter"
	"github.com/teranos/PTX/ai/tracker"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/httpclient"
)

const (
	// DefaultModel is the default Claude model
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultBaseURL is the Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com/v1"

	// APIVersion is the required anthropic-version header
	APIVersion = "2023-06-01"
)

// Client is an Anthropic API client. It accepts the same ChatRequest as the
// OpenAI-compatible client so callers can switch providers freely.
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// Config holds Anthropic client configuration
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int // required by the API, default 4096
	Timeout     time.Duration

	Logger  *zap.SugaredLogger
	Tracker *tracker.UsageTracker

	OperationType string
	EntityType    string
	EntityID      string
}

// NewClient creates a new Anthropic API client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 4096
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

// MessagesRequest is the wire request for /messages
type MessagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Messages    []Message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Temperature float64   `json:"temperature"`
}

// Message is a conversation turn
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// MessagesResponse is the wire response from /messages
type MessagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// ContentBlock is one block of the response
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage is token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Chat sends a request and records usage. JSONMode is ignored: the Messages
// API has no JSON switch, so callers put the schema in the prompt.
func (c *Client) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	if c.config.APIKey == "" {
		return nil, errors.WithHint(errors.Mark(errors.New("anthropic API key not configured"), errors.ErrModel),
			"set ANTHROPIC_API_KEY or anthropic.api_key in am.toml")
	}

	temperature := c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	c.logger.Debugw("Anthropic request", "model", model, "temperature", temperature, "max_tokens", maxTokens)

	requestTime := time.Now()
	resp, err := c.createMessages(ctx, MessagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		System:      req.SystemPrompt,
		Messages:    []Message{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		c.track(ctx, requestTime, model, temperature, maxTokens, nil, err)
		return nil, errors.Mark(errors.Wrap(err, "anthropic API error"), errors.ErrModel)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	c.track(ctx, requestTime, model, temperature, maxTokens, &resp.Usage, nil)

	return &openrouter.ChatResponse{
		Content: content.String(),
		Model:   model,
		Usage: openrouter.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func (c *Client) createMessages(ctx context.Context, req MessagesRequest) (*MessagesResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", APIVersion)

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

	var messagesResp MessagesResponse
	if err := json.Unmarshal(respBody, &messagesResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &messagesResp, nil
}

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
		ModelProvider:     "anthropic",
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if usage != nil {
		tokens := usage.InputTokens + usage.OutputTokens
		cost := CalculateCost(model, usage.InputTokens, usage.OutputTokens)
		record.TokensUsed = &tokens
		record.Cost = &cost
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}
	if err := c.config.Tracker.TrackUsage(context.WithoutCancel(ctx), record); err != nil {
		c.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}

// SetHTTPClient overrides the HTTP client. Tests only.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}
