package provider

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
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// LocalProvider talks to a local inference server over its OpenAI-compatible
// endpoint. Local servers live on loopback, so it uses a plain http.Client.
type LocalProvider struct {
	baseURL    string
	httpClient *http.Client
	numCtx     int
	client     ClientConfig
	logger     *zap.SugaredLogger
}

// NewLocalProvider creates a provider for local inference
func NewLocalProvider(cfg am.LocalInferenceConfig, clientCfg ClientConfig) *LocalProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 360 * time.Second
	}
	numCtx := 0
	if cfg.ContextSize != nil {
		numCtx = *cfg.ContextSize
	}
	logger := clientCfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LocalProvider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		numCtx:     numCtx,
		client:     clientCfg,
		logger:     logger,
	}
}

// ChatCompletionRequest is the OpenAI wire format plus Ollama options
type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []ChatMessage   `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"` // "json" asks Ollama for a JSON reply
	Options  *CompletionOpts `json:"options,omitempty"`
}

// ChatMessage is a chat turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionOpts are Ollama sampling options
type CompletionOpts struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"num_predict,omitempty"` // Ollama uses num_predict
	NumCtx      int     `json:"num_ctx,omitempty"`     // Context window size (Ollama default: 4096)
}

// ChatCompletionResponse matches the OpenAI response format
type ChatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *openrouter.Usage `json:"usage,omitempty"`
}

// Chat sends a prompt to the local server
func (lp *LocalProvider) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	model := lp.client.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}
	opts := &CompletionOpts{Temperature: 0.7, MaxTokens: 4096, NumCtx: lp.numCtx}
	if lp.client.Temperature != nil {
		opts.Temperature = *lp.client.Temperature
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if lp.client.MaxTokens != nil {
		opts.MaxTokens = *lp.client.MaxTokens
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}

	messages := []ChatMessage{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]ChatMessage{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	body := ChatCompletionRequest{Model: model, Messages: messages, Options: opts}
	if req.JSONMode {
		body.Format = "json"
	}

	requestTime := time.Now()
	resp, err := lp.do(ctx, body)
	lp.track(ctx, requestTime, model, opts, resp, err)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "local inference error"), errors.ErrModel)
	}

	out := &openrouter.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
	}
	if resp.Usage != nil {
		out.Usage = *resp.Usage
	}
	return out, nil
}

func (lp *LocalProvider) do(ctx context.Context, body ChatCompletionRequest) (*ChatCompletionResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lp.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lp.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("local inference returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var completion ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}
	return &completion, nil
}

// track records the call with zero cost
func (lp *LocalProvider) track(ctx context.Context, requestTime time.Time, model string, opts *CompletionOpts, resp *ChatCompletionResponse, callErr error) {
	if lp.client.Tracker == nil {
		return
	}
	responseTime := time.Now()
	cost := 0.0
	record := &tracker.ModelUsage{
		OperationType:     lp.client.OperationType,
		EntityType:        lp.client.EntityType,
		EntityID:          lp.client.EntityID,
		ModelName:         model,
		ModelProvider:     string(ProviderLocal),
		ModelConfig:       tracker.NewModelConfig(&opts.Temperature, &opts.MaxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Cost:              &cost,
		Success:           callErr == nil,
	}
	if resp != nil && resp.Usage != nil {
		tokens := resp.Usage.TotalTokens
		record.TokensUsed = &tokens
	}
	if callErr != nil {
		msg := callErr.Error()
		record.ErrorMessage = &msg
	}
	if err := lp.client.Tracker.TrackUsage(context.WithoutCancel(ctx), record); err != nil {
		lp.logger.Warnw("Failed to track usage", "error", err, "model", model)
	}
}
